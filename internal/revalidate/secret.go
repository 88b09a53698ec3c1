package revalidate

import (
	"context"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"

	"github.com/onterra/onterra-web/internal/xerrors"
)

// SSMAPI is the subset of the SSM client used to load the webhook secret.
type SSMAPI interface {
	GetParameter(ctx context.Context, in *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// LoadSecret reads the webhook secret from a SecureString parameter.
func LoadSecret(ctx context.Context, api SSMAPI, name string) (string, error) {
	out, err := api.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(name),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		return "", xerrors.Wrapf(err, "get SSM parameter %s", name)
	}
	if out.Parameter == nil || out.Parameter.Value == nil {
		return "", xerrors.Newf("SSM parameter %s has no value", name)
	}
	secret := strings.TrimSpace(*out.Parameter.Value)
	if secret == "" {
		return "", xerrors.Newf("SSM parameter %s is empty", name)
	}
	return secret, nil
}

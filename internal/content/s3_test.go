package content

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

type fakeS3 struct {
	objects map[string][]byte
	err     error
	keys    []string
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	key := aws.ToString(in.Key)
	f.keys = append(f.keys, key)
	if f.err != nil {
		return nil, f.err
	}
	b, ok := f.objects[key]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(b))}, nil
}

const teamExport = `[
	{"_id":"drafts.m2","_type":"teamMember","name":"Draft Bo","order":0},
	{"_id":"m2","_type":"teamMember","name":"Bo","order":2},
	{"_id":"m1","_type":"teamMember","name":"Ada","order":1},
	{"_id":"m3","_type":"teamMember","name":"Cy"}
]`

func TestNewS3Transport_Validation(t *testing.T) {
	if _, err := NewS3Transport(S3Options{Bucket: "b"}); !errors.Is(err, ErrInvalidOptions) {
		t.Fatalf("missing client: err = %v", err)
	}
	if _, err := NewS3Transport(S3Options{Client: &fakeS3{}}); !errors.Is(err, ErrInvalidOptions) {
		t.Fatalf("missing bucket: err = %v", err)
	}
}

func TestS3Transport_ListOrderedWithoutDrafts(t *testing.T) {
	f := &fakeS3{objects: map[string][]byte{"export/teamMember.json": []byte(teamExport)}}
	tr, _ := NewS3Transport(S3Options{Client: f, Bucket: "b", Prefix: "export"})
	q, _ := Lookup(QTeamMembers)

	raw, err := tr.Query(t.Context(), q, nil)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	var docs []struct {
		ID string `json:"_id"`
	}
	if err := json.Unmarshal(raw, &docs); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	var ids []string
	for _, d := range docs {
		ids = append(ids, d.ID)
	}
	want := []string{"m1", "m2", "m3"}
	if len(ids) != len(want) {
		t.Fatalf("ids = %v, want %v", ids, want)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("ids = %v, want %v", ids, want)
		}
	}
	if f.keys[0] != "export/teamMember.json" {
		t.Fatalf("key = %q", f.keys[0])
	}
}

func TestS3Transport_BySlug(t *testing.T) {
	export := `[
		{"_id":"a","_type":"legalPage","title":"Privacy","slug":{"current":"privacy-policy"}},
		{"_id":"b","_type":"legalPage","title":"Terms","slug":{"current":"terms-of-service"}}
	]`
	f := &fakeS3{objects: map[string][]byte{"legalPage.json": []byte(export)}}
	tr, _ := NewS3Transport(S3Options{Client: f, Bucket: "b"})
	q, _ := Lookup(QLegalPageBySlug)

	raw, err := tr.Query(t.Context(), q, Params{ParamSlug: "terms-of-service"})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	var doc struct {
		ID string `json:"_id"`
	}
	_ = json.Unmarshal(raw, &doc)
	if doc.ID != "b" {
		t.Fatalf("id = %q, want b", doc.ID)
	}

	raw, err = tr.Query(t.Context(), q, Params{ParamSlug: "cookie-policy"})
	if err != nil || raw != nil {
		t.Fatalf("missing slug = (%s, %v), want (nil, nil)", raw, err)
	}
}

func TestS3Transport_MissingObjectIsEmpty(t *testing.T) {
	tr, _ := NewS3Transport(S3Options{Client: &fakeS3{}, Bucket: "b"})

	q, _ := Lookup(QHeroSection)
	raw, err := tr.Query(t.Context(), q, nil)
	if err != nil || raw != nil {
		t.Fatalf("singleton = (%s, %v), want (nil, nil)", raw, err)
	}

	q, _ = Lookup(QTeamMembers)
	raw, err = tr.Query(t.Context(), q, nil)
	if err != nil || string(raw) != "[]" {
		t.Fatalf("list = (%s, %v), want ([], nil)", raw, err)
	}
}

func TestS3Transport_ClientErrorIsTransport(t *testing.T) {
	tr, _ := NewS3Transport(S3Options{Client: &fakeS3{err: errors.New("access denied")}, Bucket: "b"})
	c := newTestClient(t, tr)
	_, err := c.Fetch(t.Context(), QNavigation, nil)
	if !IsKind(err, KindTransport) {
		t.Fatalf("err = %v, want kind transport", err)
	}
}

func TestS3Transport_MalformedExport(t *testing.T) {
	f := &fakeS3{objects: map[string][]byte{"navigation.json": []byte(`{"not":"an array"}`)}}
	tr, _ := NewS3Transport(S3Options{Client: f, Bucket: "b"})
	c := newTestClient(t, tr)
	_, err := c.Fetch(t.Context(), QNavigation, nil)
	if !IsKind(err, KindDecode) {
		t.Fatalf("err = %v, want kind decode", err)
	}
}

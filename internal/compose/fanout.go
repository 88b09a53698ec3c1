package compose

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/onterra/onterra-web/internal/cms"
	"github.com/onterra/onterra-web/internal/content"
)

// documents holds the fetched results of one composition keyed by query.
// Singletons are stored as *T, lists as []T. Absent keys are missing or
// failed optional documents.
type documents map[content.QueryID]any

func one[T cms.Document](d documents, id content.QueryID) *T {
	v, _ := d[id].(*T)
	return v
}

func list[T cms.Document](d documents, id content.QueryID) []T {
	v, _ := d[id].([]T)
	return v
}

type fetchFunc func(ctx context.Context, c *content.Client, id content.QueryID, p content.Params) (doc any, ok bool, err error)

func fetchOne[T cms.Document](ctx context.Context, c *content.Client, id content.QueryID, p content.Params) (any, bool, error) {
	doc, err := content.FetchOne[T](ctx, c, id, p)
	if err != nil || doc == nil {
		return nil, false, err
	}
	return doc, true, nil
}

func fetchList[T cms.Document](ctx context.Context, c *content.Client, id content.QueryID, p content.Params) (any, bool, error) {
	docs, err := content.FetchList[T](ctx, c, id, p)
	if err != nil {
		return nil, false, err
	}
	return docs, true, nil
}

var fetchers = map[content.QueryID]fetchFunc{
	content.QSiteSettings:         fetchOne[cms.SiteSettingsDoc],
	content.QNavigation:           fetchOne[cms.NavigationDoc],
	content.QContactDetails:       fetchOne[cms.ContactDetailsDoc],
	content.QSocialLinks:          fetchOne[cms.SocialLinksDoc],
	content.QHeroSection:          fetchOne[cms.HeroSectionDoc],
	content.QInvestmentStrategies: fetchOne[cms.InvestmentStrategiesDoc],
	content.QOnterraStandards:     fetchOne[cms.OnterraStandardsDoc],
	content.QAboutPage:            fetchOne[cms.AboutPageDoc],
	content.QTeamMembers:          fetchList[cms.TeamMemberDoc],
	content.QTeamPage:             fetchOne[cms.TeamPageDoc],
	content.QLegalPages:           fetchList[cms.LegalPageDoc],
	content.QLegalPageBySlug:      fetchOne[cms.LegalPageDoc],
}

type depFailure struct {
	query content.QueryID
	err   error
}

// gather fetches every dep concurrently, at most c.fetchers at a time.
// Siblings are never cancelled by a failure: every fetch settles before the
// outcome is decided.
func (c *Composer) gather(ctx context.Context, surface string, deps []Dep, params content.Params) (documents, error) {
	var (
		g        errgroup.Group
		mu       sync.Mutex
		docs     = make(documents, len(deps))
		failures []depFailure
		notFound bool
	)
	for _, d := range deps {
		if _, ok := fetchers[d.Query]; !ok {
			return nil, fmt.Errorf("compose %s: no fetcher for query %s", surface, d.Query)
		}
	}
	g.SetLimit(c.fetchers)
	for _, d := range deps {
		fetch := fetchers[d.Query]
		g.Go(func() error {
			v, present, err := fetch(ctx, c.client, d.Query, params)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil && d.Need == Optional:
				c.logger.Warn(ctx, "optional document unavailable",
					"surface", surface,
					"query", string(d.Query),
					"err", err,
				)
			case err != nil:
				failures = append(failures, depFailure{d.Query, err})
			case !present && d.Need == Required:
				failures = append(failures, depFailure{d.Query, fmt.Errorf("%s: %w", d.Query, ErrMissingDocument)})
			case !present && d.Need == Lookup:
				notFound = true
			case present:
				docs[d.Query] = v
			}
			return nil
		})
	}
	_ = g.Wait()

	if len(failures) > 0 {
		slices.SortFunc(failures, func(a, b depFailure) int { return cmp.Compare(a.query, b.query) })
		ce := &CompositionError{Surface: surface}
		errs := make([]error, 0, len(failures))
		for _, f := range failures {
			ce.Missing = append(ce.Missing, f.query)
			errs = append(errs, f.err)
		}
		ce.Err = errors.Join(errs...)
		return nil, ce
	}
	if notFound {
		return nil, ErrNotFound
	}
	return docs, nil
}

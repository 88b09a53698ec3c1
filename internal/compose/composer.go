package compose

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/onterra/onterra-web/internal/assets"
	"github.com/onterra/onterra-web/internal/cms"
	"github.com/onterra/onterra-web/internal/content"
	"github.com/onterra/onterra-web/internal/log"
	"github.com/onterra/onterra-web/internal/registry"
)

// Metrics is implemented by the metrics package.
type Metrics interface {
	IncComposition(surface, outcome string)
	ObserveComposition(surface string, seconds float64)
}

var ErrInvalidOptions = errors.New("compose: invalid options")

// DefaultMaxConcurrentFetches covers the widest surface in one round.
const DefaultMaxConcurrentFetches = 8

type Options struct {
	Client  *content.Client
	Assets  assets.Resolver
	Logger  log.Logger
	Metrics Metrics
	// MaxConcurrentFetches bounds the fan-out of one composition. 0 means
	// DefaultMaxConcurrentFetches.
	MaxConcurrentFetches int
}

// Composer builds view-models. Given the same documents it always produces
// deep-equal view-models; it never substitutes stale data for missing
// required documents.
type Composer struct {
	client   *content.Client
	assets   assets.Resolver
	md       markdown
	logger   log.Logger
	metrics  Metrics
	tracer   trace.Tracer
	fetchers int
}

func New(opts Options) (*Composer, error) {
	if opts.Client == nil {
		return nil, fmt.Errorf("%w: content client is required", ErrInvalidOptions)
	}
	if opts.MaxConcurrentFetches < 0 {
		return nil, fmt.Errorf("%w: MaxConcurrentFetches must not be negative", ErrInvalidOptions)
	}
	if opts.MaxConcurrentFetches == 0 {
		opts.MaxConcurrentFetches = DefaultMaxConcurrentFetches
	}
	if opts.Logger == nil {
		opts.Logger = log.Nop()
	}
	return &Composer{
		client:   opts.Client,
		assets:   opts.Assets,
		md:       newMarkdown(),
		logger:   opts.Logger,
		metrics:  opts.Metrics,
		tracer:   otel.Tracer("onterra/compose"),
		fetchers: opts.MaxConcurrentFetches,
	}, nil
}

type builder func(c *Composer, path string, d documents) (ViewModel, error)

var builders = map[string]builder{
	SurfaceHome:       (*Composer).buildHome,
	SurfaceAbout:      (*Composer).buildAbout,
	SurfaceTeam:       (*Composer).buildTeam,
	SurfaceContact:    (*Composer).buildContact,
	SurfaceLegalIndex: (*Composer).buildLegalIndex,
	SurfaceLegalPage:  (*Composer).buildLegalPage,
}

// Compose builds the view-model of the surface pattern. Parametric patterns
// take their slug from params.
func (c *Composer) Compose(ctx context.Context, pattern string, params content.Params) (vm ViewModel, err error) {
	deps, ok := surfaceDeps[pattern]
	build, ok2 := builders[pattern]
	if !ok || !ok2 {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSurface, pattern)
	}
	path := pattern
	if s := (registry.Surface{Path: pattern}); s.Parametric() {
		slug := params[content.ParamSlug]
		if !registry.ValidSlug(slug) {
			return nil, ErrNotFound
		}
		path = s.Instance(slug)
		params = content.Params{content.ParamSlug: slug}
	} else {
		params = nil
	}

	ctx, span := c.tracer.Start(ctx, "compose", trace.WithAttributes(
		attribute.String("compose.surface", pattern),
		attribute.String("compose.path", path),
	))
	start := time.Now()
	defer func() {
		outcome := outcomeOf(err)
		if err != nil && outcome != "not_found" {
			span.RecordError(err)
			span.SetStatus(codes.Error, outcome)
		}
		span.End()
		if c.metrics != nil {
			c.metrics.IncComposition(pattern, outcome)
			c.metrics.ObserveComposition(pattern, time.Since(start).Seconds())
		}
	}()

	docs, err := c.gather(ctx, pattern, deps, params)
	if err != nil {
		return nil, err
	}
	return build(c, path, docs)
}

func outcomeOf(err error) string {
	var ce *CompositionError
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.As(err, &ce):
		return "failed"
	default:
		return "error"
	}
}

func (c *Composer) image(ref *cms.AssetRef) *Image {
	u := c.assets.Resolve(ref)
	if u == nil {
		return nil
	}
	return &Image{URL: *u, Alt: ref.AltText()}
}

func (c *Composer) chrome(d documents) Chrome {
	var ch Chrome
	if s := one[cms.SiteSettingsDoc](d, content.QSiteSettings); s != nil {
		ch.Site = Site{
			Title:       s.Title,
			Description: s.Description,
			Logo:        c.image(s.Logo),
			OGImage:     c.image(s.OGImage),
		}
	}
	if n := one[cms.NavigationDoc](d, content.QNavigation); n != nil {
		ch.Navigation = make([]Link, 0, len(n.Items))
		for _, it := range n.Items {
			ch.Navigation = append(ch.Navigation, Link(it))
		}
	}
	if cd := one[cms.ContactDetailsDoc](d, content.QContactDetails); cd != nil {
		ch.Contact = &Contact{Email: cd.Email, Phone: cd.Phone, Address: cd.Address}
	}
	if sl := one[cms.SocialLinksDoc](d, content.QSocialLinks); sl != nil {
		ch.Social = make([]Social, 0, len(sl.Links))
		for _, l := range sl.Links {
			ch.Social = append(ch.Social, Social(l))
		}
	}
	return ch
}

func (c *Composer) buildHome(path string, d documents) (ViewModel, error) {
	vm := &HomePage{Path: path, Chrome: c.chrome(d)}
	if h := one[cms.HeroSectionDoc](d, content.QHeroSection); h != nil {
		vm.Hero = &Hero{
			Heading:         h.Heading,
			Subheading:      h.Subheading,
			BackgroundImage: c.image(h.BackgroundImage),
		}
		if h.CTA != nil {
			cta := Link(*h.CTA)
			vm.Hero.CTA = &cta
		}
	}
	if s := one[cms.InvestmentStrategiesDoc](d, content.QInvestmentStrategies); s != nil {
		sec := &Section{Heading: s.Heading, Items: make([]Card, 0, len(s.Strategies))}
		for _, it := range s.Strategies {
			sec.Items = append(sec.Items, Card{Title: it.Title, Text: it.Summary, Icon: c.image(it.Icon)})
		}
		vm.Strategies = sec
	}
	if s := one[cms.OnterraStandardsDoc](d, content.QOnterraStandards); s != nil {
		sec := &Section{Heading: s.Heading, Intro: s.Intro, Items: make([]Card, 0, len(s.Standards))}
		for _, it := range s.Standards {
			sec.Items = append(sec.Items, Card{Title: it.Title, Text: it.Body, Icon: c.image(it.Icon)})
		}
		vm.Standards = sec
	}
	return vm, nil
}

func (c *Composer) buildAbout(path string, d documents) (ViewModel, error) {
	a := one[cms.AboutPageDoc](d, content.QAboutPage)
	body, err := c.md.render(a.Body)
	if err != nil {
		return nil, fmt.Errorf("compose %s: render body: %w", path, err)
	}
	return &AboutPage{
		Path:   path,
		Chrome: c.chrome(d),
		About:  About{Heading: a.Heading, BodyHTML: body, Image: c.image(a.Image)},
	}, nil
}

func (c *Composer) buildTeam(path string, d documents) (ViewModel, error) {
	vm := &TeamPage{Path: path, Chrome: c.chrome(d)}
	if p := one[cms.TeamPageDoc](d, content.QTeamPage); p != nil {
		vm.Intro = &TeamIntro{Heading: p.Heading, Intro: p.Intro, HeroImage: c.image(p.HeroImage)}
	}
	members := list[cms.TeamMemberDoc](d, content.QTeamMembers)
	vm.Members = make([]Member, 0, len(members))
	for _, m := range members {
		vm.Members = append(vm.Members, Member{
			Name:     m.Name,
			Role:     m.Role,
			Bio:      m.Bio,
			LinkedIn: m.LinkedIn,
			Photo:    c.image(m.Photo),
		})
	}
	return vm, nil
}

func (c *Composer) buildContact(path string, d documents) (ViewModel, error) {
	vm := &ContactPage{Path: path, Chrome: c.chrome(d)}
	vm.Contact = *vm.Chrome.Contact
	return vm, nil
}

func (c *Composer) buildLegalIndex(path string, d documents) (ViewModel, error) {
	pages := list[cms.LegalPageDoc](d, content.QLegalPages)
	vm := &LegalIndexPage{Path: path, Chrome: c.chrome(d), Pages: make([]LegalSummary, 0, len(pages))}
	page := registry.Surface{Path: SurfaceLegalPage}
	for _, p := range pages {
		// unroutable slugs would link to a 404
		if !registry.ValidSlug(p.Slug.Current) {
			continue
		}
		vm.Pages = append(vm.Pages, LegalSummary{
			Title:         p.Title,
			Slug:          p.Slug.Current,
			Href:          page.Instance(p.Slug.Current),
			EffectiveDate: p.EffectiveDate,
		})
	}
	return vm, nil
}

func (c *Composer) buildLegalPage(path string, d documents) (ViewModel, error) {
	p := one[cms.LegalPageDoc](d, content.QLegalPageBySlug)
	body, err := c.md.render(p.Body)
	if err != nil {
		return nil, fmt.Errorf("compose %s: render body: %w", path, err)
	}
	return &LegalPage{
		Path:   path,
		Chrome: c.chrome(d),
		Page: LegalDocument{
			Title:         p.Title,
			Slug:          p.Slug.Current,
			BodyHTML:      body,
			EffectiveDate: p.EffectiveDate,
		},
	}, nil
}

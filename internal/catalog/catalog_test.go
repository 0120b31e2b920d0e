package catalog_test

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"sync"
	"testing"
	"testing/fstest"

	"travelcatalog/internal/catalog"
	"travelcatalog/internal/domain"
	"travelcatalog/internal/store"
)

func descriptors() []domain.CategoryDescriptor {
	var out []domain.CategoryDescriptor
	for _, id := range []string{"adventures", "crafts", "culture-festivals", "wildlife-safaris"} {
		out = append(out, domain.CategoryDescriptor{
			ID:                 id,
			MasterPathTemplate: id + "/{locale}/index.json",
			ItemPathTemplate:   id + "/{locale}/{slug}.json",
			DefaultLocale:      "en",
			Locales:            []string{"en", "hi"},
		})
	}
	return out
}

func fixtureFS() fstest.MapFS {
	file := func(s string) *fstest.MapFile { return &fstest.MapFile{Data: []byte(s)} }
	return fstest.MapFS{
		"wildlife-safaris/en/index.json": file(`{"title":"Wildlife","intro":"Parks","cards":[
			{"slug":"ranthambore","title":"Ranthambore","subtitle":"Tigers"},
			{"slug":"kaziranga","title":"Kaziranga","subtitle":"Rhinos","is_live":false}]}`),
		"wildlife-safaris/en/ranthambore.json": file(`{"slug":"ranthambore","title":"Ranthambore National Park",
			"hero_image":"img/ranthambore.jpg","long_description":"Tiger country.","tags":["tiger"],
			"best_time":"Oct-Jun"}`),
		"wildlife-safaris/en/kaziranga.json": file(`{"slug":"kaziranga","title":"Kaziranga","is_live":false}`),
		"crafts/en/index.json":               file(`{"title":"Crafts","cards":[{"slug":"blue-pottery","title":"Blue Pottery"}]}`),
		"crafts/en/blue-pottery.json":        file(`{"slug":"blue-pottery","title":"Blue Pottery","major_centres":["Jaipur"]}`),
		"crafts/hi/blue-pottery.json":        file(`{"slug":"blue-pottery","title":"नीली मिट्टी के बर्तन"}`),
		"crafts/hi/broken.json":              file(`{"slug":"broken",`),
		"crafts/en/broken.json":              file(`{"slug":"broken","title":"Broken"}`),
		"crafts/en/wrong-slug.json":          file(`{"slug":"other","title":"Other"}`),
		"crafts/en/no-title.json":            file(`{"slug":"no-title"}`),
		"crafts/en/array.json":               file(`[1,2,3]`),
		"culture-festivals/en/index.json": file(`{"title":"Festivals","cards":[
			{"slug":"diwali","title":"Diwali","category":"Lights"},
			{"slug":"holi","title":"Holi","category":"Colours"},
			{"slug":"pushkar-mela","title":"Pushkar Camel Fair","category":"Fairs"}]}`),
		"culture-festivals/hi/index.json": file(`{"title":"त्योहार","cards":[{"slug":"diwali","title":"दीवाली"}]}`),
		"culture-festivals/en/diwali.json": file(`{"slug":"diwali","title":"Diwali"}`),
		"adventures/en/index.json": file(`{"title":"Adventures","cards":[
			{"slug":"paragliding-bir","title":"Paragliding in Bir","category":"Air"},
			{"slug":"rafting-rishikesh","title":"White Water Rafting","category":"Water"},
			{"slug":"rafting-rishikesh","title":"Duplicate","category":"Water"}]}`),
	}
}

type countingStore struct {
	inner store.Store
	mu    sync.Mutex
	paths []string
}

func (c *countingStore) Load(ctx context.Context, path string) ([]byte, error) {
	c.mu.Lock()
	c.paths = append(c.paths, path)
	c.mu.Unlock()
	return c.inner.Load(ctx, path)
}

func (c *countingStore) loaded() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.paths...)
}

type testEnv struct {
	Resolver   *catalog.Resolver
	Aggregator *catalog.Aggregator
	Store      *countingStore
	Ctx        context.Context
}

func newTestEnv(t *testing.T, schemas map[string]map[string]any) testEnv {
	t.Helper()
	reg, err := catalog.NewRegistry(descriptors(), schemas)
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	st := &countingStore{inner: store.FSStore{FS: fixtureFS()}}
	res := catalog.NewResolver(reg, st, nil)
	return testEnv{Resolver: res, Aggregator: catalog.NewAggregator(res), Store: st, Ctx: context.Background()}
}

func TestResolveDefaultLocale(t *testing.T) {
	env := newTestEnv(t, nil)
	res, err := env.Resolver.Resolve(env.Ctx, "wildlife-safaris", "ranthambore", "en")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if !res.Found || res.LocaleServed != "en" || res.Fallback() {
		t.Fatalf("expected found in en without fallback, got %+v", res)
	}
	rec := res.Value
	if rec.Title != "Ranthambore National Park" || rec.HeroImageRef != "img/ranthambore.jpg" || !rec.IsLive {
		t.Fatalf("unexpected record %+v", rec)
	}
	if string(rec.Attributes["best_time"]) != `"Oct-Jun"` {
		t.Fatalf("expected category attribute preserved, got %v", rec.Attributes)
	}
	if _, ok := rec.Attributes["title"]; ok {
		t.Fatalf("common fields must not be duplicated into attributes")
	}
}

func TestResolveFallsBackToDefaultLocale(t *testing.T) {
	env := newTestEnv(t, nil)
	res, err := env.Resolver.Resolve(env.Ctx, "wildlife-safaris", "ranthambore", "hi")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if !res.Found || res.LocaleServed != "en" || res.RequestedLocale != "hi" || !res.Fallback() {
		t.Fatalf("expected fallback to en, got %+v", res)
	}
	want := []string{"wildlife-safaris/hi/ranthambore.json", "wildlife-safaris/en/ranthambore.json"}
	if got := env.Store.loaded(); !reflect.DeepEqual(got, want) {
		t.Fatalf("loaded %v, want %v", got, want)
	}
}

func TestResolveServesRequestedLocale(t *testing.T) {
	env := newTestEnv(t, nil)
	res, err := env.Resolver.Resolve(env.Ctx, "crafts", "blue-pottery", "hi")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if !res.Found || res.LocaleServed != "hi" || res.Fallback() {
		t.Fatalf("expected hi record, got %+v", res)
	}
}

func TestResolveEmptyLocaleMeansDefault(t *testing.T) {
	env := newTestEnv(t, nil)
	res, err := env.Resolver.Resolve(env.Ctx, "crafts", "blue-pottery", "")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if !res.Found || res.RequestedLocale != "en" || res.LocaleServed != "en" {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestResolveUnregisteredLocaleSkipsToDefault(t *testing.T) {
	env := newTestEnv(t, nil)
	for _, loc := range []string{"en-US", "EN", "../etc"} {
		res, err := env.Resolver.Resolve(env.Ctx, "crafts", "blue-pottery", loc)
		if err != nil {
			t.Fatalf("resolve %s: %v", loc, err)
		}
		if !res.Found || res.LocaleServed != "en" || !res.Fallback() {
			t.Fatalf("locale %s: expected fallback to en, got %+v", loc, res)
		}
	}
	for _, p := range env.Store.loaded() {
		if p != "crafts/en/blue-pottery.json" {
			t.Fatalf("unregistered locale reached the store: %s", p)
		}
	}
}

func TestResolveNotFound(t *testing.T) {
	env := newTestEnv(t, nil)
	for _, loc := range []string{"en", "hi"} {
		res, err := env.Resolver.Resolve(env.Ctx, "adventures", "bungee-jumping-rishikesh", loc)
		if err != nil {
			t.Fatalf("resolve: %v", err)
		}
		if res.Found || res.LocaleServed != "" || !reflect.DeepEqual(res.Value, domain.DetailRecord{}) {
			t.Fatalf("expected empty not-found result, got %+v", res)
		}
	}
	_, err := env.Resolver.ResolveRecord(env.Ctx, "adventures", "bungee-jumping-rishikesh", "en")
	if !errors.Is(err, catalog.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestResolveUnsafeSlugIsNotFound(t *testing.T) {
	env := newTestEnv(t, nil)
	for _, slug := range []string{"", "../crafts/en/index", "en/blue-pottery", `..\index`, "{slug}", " blue-pottery"} {
		res, err := env.Resolver.Resolve(env.Ctx, "crafts", slug, "en")
		if err != nil || res.Found {
			t.Fatalf("slug %q: expected not found, got %+v %v", slug, res, err)
		}
	}
	if n := len(env.Store.loaded()); n != 0 {
		t.Fatalf("unsafe slugs must not reach the store, got %d loads", n)
	}
	res, err := env.Resolver.Resolve(env.Ctx, "crafts", "Blue Pottery", "en")
	if err != nil || res.Found {
		t.Fatalf("expected plain miss, got %+v %v", res, err)
	}
}

func TestListedSlugsResolve(t *testing.T) {
	file := func(s string) *fstest.MapFile { return &fstest.MapFile{Data: []byte(s)} }
	fsys := fstest.MapFS{
		"adventures/en/index.json": file(`{"title":"Treks","cards":[
			{"slug":"Hampta-Pass","title":"Hampta Pass"},
			{"slug":"roopkund--trek","title":"Roopkund"},
			{"slug":"chadar_trek_2024","title":"Chadar"}]}`),
		"adventures/en/Hampta-Pass.json":      file(`{"slug":"Hampta-Pass","title":"Hampta Pass"}`),
		"adventures/en/roopkund--trek.json":   file(`{"slug":"roopkund--trek","title":"Roopkund"}`),
		"adventures/en/chadar_trek_2024.json": file(`{"slug":"chadar_trek_2024","title":"Chadar"}`),
		"adventures/hi/Hampta-Pass.json":      file(`{"slug":"Hampta-Pass","title":"हम्पटा पास"}`),
	}
	reg, err := catalog.NewRegistry(descriptors(), nil)
	if err != nil {
		t.Fatal(err)
	}
	res := catalog.NewResolver(reg, store.FSStore{FS: fsys}, nil)
	agg := catalog.NewAggregator(res)
	ctx := context.Background()
	for _, locale := range []string{"en", "hi"} {
		idx, err := agg.ListCards(ctx, "adventures", locale)
		if err != nil || !idx.Found {
			t.Fatalf("list %s: %+v %v", locale, idx, err)
		}
		if len(idx.Value.Cards) != 3 {
			t.Fatalf("expected 3 cards, got %+v", idx.Value.Cards)
		}
		for _, c := range idx.Value.Cards {
			got, err := res.Resolve(ctx, "adventures", c.Slug, locale)
			if err != nil || !got.Found {
				t.Fatalf("listed slug %q in %s did not resolve: %+v %v", c.Slug, locale, got, err)
			}
		}
	}
	got, err := res.Resolve(ctx, "adventures", "Hampta-Pass", "hi")
	if err != nil || got.LocaleServed != "hi" {
		t.Fatalf("expected hi variant, got %+v %v", got, err)
	}
}

func TestIndexWithUnsafeCardSlugIsLoadError(t *testing.T) {
	file := func(s string) *fstest.MapFile { return &fstest.MapFile{Data: []byte(s)} }
	reg, err := catalog.NewRegistry(descriptors(), nil)
	if err != nil {
		t.Fatal(err)
	}
	for _, slug := range []string{"../secrets", "a/b", "{locale}"} {
		fsys := fstest.MapFS{
			"crafts/en/index.json": file(`{"title":"Crafts","cards":[{"slug":"` + slug + `","title":"X"}]}`),
		}
		agg := catalog.NewAggregator(catalog.NewResolver(reg, store.FSStore{FS: fsys}, nil))
		_, err := agg.ListCards(context.Background(), "crafts", "en")
		var le *catalog.LoadError
		if !errors.As(err, &le) {
			t.Fatalf("slug %q: expected *LoadError, got %v", slug, err)
		}
	}
}

func TestResolveUnknownCategory(t *testing.T) {
	env := newTestEnv(t, nil)
	_, err := env.Resolver.Resolve(env.Ctx, "space-tourism", "moon", "en")
	var nre *catalog.NotRegisteredError
	if !errors.As(err, &nre) || nre.CategoryID != "space-tourism" {
		t.Fatalf("expected NotRegisteredError, got %v", err)
	}
	if !errors.Is(err, catalog.ErrNotRegistered) || errors.Is(err, catalog.ErrNotFound) {
		t.Fatalf("not-registered must be distinguishable from not-found: %v", err)
	}
	if _, err := env.Aggregator.ListCards(env.Ctx, "space-tourism", "en"); !errors.Is(err, catalog.ErrNotRegistered) {
		t.Fatalf("expected ErrNotRegistered from ListCards, got %v", err)
	}
}

func TestResolveMalformedContentIsLoadError(t *testing.T) {
	env := newTestEnv(t, nil)
	cases := map[string]string{
		"wrong-slug": "does not match",
		"no-title":   "no title",
		"array":      "decode detail",
	}
	for slug, msg := range cases {
		res, err := env.Resolver.Resolve(env.Ctx, "crafts", slug, "en")
		if !errors.Is(err, catalog.ErrLoad) {
			t.Fatalf("%s: expected load error, got %v", slug, err)
		}
		if errors.Is(err, catalog.ErrNotFound) || res.Found {
			t.Fatalf("%s: load error must not look like not-found or found", slug)
		}
		if !strings.Contains(err.Error(), msg) {
			t.Fatalf("%s: expected %q in %v", slug, msg, err)
		}
	}
}

func TestResolveBrokenRequestedLocaleDoesNotFallBack(t *testing.T) {
	env := newTestEnv(t, nil)
	_, err := env.Resolver.Resolve(env.Ctx, "crafts", "broken", "hi")
	var le *catalog.LoadError
	if !errors.As(err, &le) {
		t.Fatalf("expected LoadError, got %v", err)
	}
	if le.Path != "crafts/hi/broken.json" || le.Locale != "hi" || le.Category != "crafts" {
		t.Fatalf("unexpected load error %+v", le)
	}
}

func TestResolveStoreFailureIsLoadError(t *testing.T) {
	reg, err := catalog.NewRegistry(descriptors(), nil)
	if err != nil {
		t.Fatal(err)
	}
	boom := errors.New("disk on fire")
	r := catalog.NewResolver(reg, store.Func(func(context.Context, string) ([]byte, error) {
		return nil, boom
	}), nil)
	_, err = r.Resolve(context.Background(), "crafts", "blue-pottery", "en")
	if !errors.Is(err, catalog.ErrLoad) || !errors.Is(err, boom) {
		t.Fatalf("expected load error wrapping cause, got %v", err)
	}
}

func TestResolveCanceledContext(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx, cancel := context.WithCancel(env.Ctx)
	cancel()
	_, err := env.Resolver.Resolve(ctx, "crafts", "blue-pottery", "en")
	if !errors.Is(err, context.Canceled) || errors.Is(err, catalog.ErrLoad) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestResolveReturnsUnpublishedRecords(t *testing.T) {
	env := newTestEnv(t, nil)
	res, err := env.Resolver.Resolve(env.Ctx, "wildlife-safaris", "kaziranga", "en")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if !res.Found || res.Value.IsLive {
		t.Fatalf("expected unpublished record to resolve, got %+v", res)
	}
}

func TestResolveValidatesDetailSchema(t *testing.T) {
	schemas := map[string]map[string]any{
		"crafts": {
			"type":     "object",
			"required": []any{"major_centres"},
		},
	}
	env := newTestEnv(t, schemas)
	if _, err := env.Resolver.Resolve(env.Ctx, "crafts", "blue-pottery", "en"); err != nil {
		t.Fatalf("valid record rejected: %v", err)
	}
	_, err := env.Resolver.Resolve(env.Ctx, "crafts", "blue-pottery", "hi")
	if !errors.Is(err, catalog.ErrLoad) || !strings.Contains(err.Error(), "schema validation failed") {
		t.Fatalf("expected schema load error, got %v", err)
	}
}

func TestResolveIsDeterministic(t *testing.T) {
	env := newTestEnv(t, nil)
	first, err := env.Resolver.Resolve(env.Ctx, "wildlife-safaris", "ranthambore", "hi")
	if err != nil {
		t.Fatal(err)
	}
	second, err := env.Resolver.Resolve(env.Ctx, "wildlife-safaris", "ranthambore", "hi")
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("results differ:\n%+v\n%+v", first, second)
	}
}

func TestListCardsLoadsOnlyIndex(t *testing.T) {
	env := newTestEnv(t, nil)
	res, err := env.Aggregator.ListCards(env.Ctx, "culture-festivals", "en")
	if err != nil {
		t.Fatalf("list cards: %v", err)
	}
	if !res.Found || len(res.Value.Cards) != 3 {
		t.Fatalf("expected 3 festival cards, got %+v", res)
	}
	if res.Value.CategoryID != "culture-festivals" || res.Value.Locale != "en" || res.Value.Title != "Festivals" {
		t.Fatalf("unexpected index header %+v", res.Value)
	}
	for _, p := range env.Store.loaded() {
		if !strings.HasSuffix(p, "/index.json") {
			t.Fatalf("listing loaded a detail record: %s", p)
		}
	}
	if n := len(env.Store.loaded()); n != 1 {
		t.Fatalf("expected one load, got %d", n)
	}
}

func TestListCardsLocales(t *testing.T) {
	env := newTestEnv(t, nil)
	res, err := env.Aggregator.ListCards(env.Ctx, "culture-festivals", "hi")
	if err != nil {
		t.Fatal(err)
	}
	if res.LocaleServed != "hi" || res.Value.Locale != "hi" || len(res.Value.Cards) != 1 {
		t.Fatalf("expected hi index, got %+v", res)
	}
	res, err = env.Aggregator.ListCards(env.Ctx, "wildlife-safaris", "hi")
	if err != nil {
		t.Fatal(err)
	}
	if !res.Fallback() || res.Value.Locale != "en" {
		t.Fatalf("expected fallback index, got %+v", res)
	}
}

func TestListCardsMissingAndMalformed(t *testing.T) {
	env := newTestEnv(t, nil)
	res, err := env.Aggregator.ListCards(env.Ctx, "crafts", "hi")
	if err != nil || !res.Found {
		t.Fatalf("expected fallback crafts index, got %+v %v", res, err)
	}
	if _, err := env.Aggregator.Index(env.Ctx, "crafts", "en"); err != nil {
		t.Fatalf("index: %v", err)
	}
	_, err = env.Aggregator.ListCards(env.Ctx, "adventures", "en")
	if !errors.Is(err, catalog.ErrLoad) || !strings.Contains(err.Error(), "duplicate card slug") {
		t.Fatalf("expected duplicate slug load error, got %v", err)
	}
	reg, _ := catalog.NewRegistry(descriptors(), nil)
	empty := catalog.NewAggregator(catalog.NewResolver(reg, store.FSStore{FS: fstest.MapFS{}}, nil))
	res, err = empty.ListCards(env.Ctx, "crafts", "en")
	if err != nil || res.Found {
		t.Fatalf("expected not found, got %+v %v", res, err)
	}
	if _, err := empty.Index(env.Ctx, "crafts", "en"); !errors.Is(err, catalog.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestFilterCards(t *testing.T) {
	env := newTestEnv(t, nil)
	res, err := env.Aggregator.ListCards(env.Ctx, "culture-festivals", "en")
	if err != nil {
		t.Fatal(err)
	}
	index := res.Value
	before := append([]domain.CardSummary(nil), index.Cards...)

	got := catalog.FilterCards(index, catalog.TitleContains("CAMEL"))
	if len(got) != 1 || got[0].Slug != "pushkar-mela" {
		t.Fatalf("title search: %+v", got)
	}
	got = catalog.FilterCards(index, catalog.InSubcategory("lights"))
	if len(got) != 1 || got[0].Slug != "diwali" {
		t.Fatalf("subcategory: %+v", got)
	}
	got = catalog.FilterCards(index, catalog.All(catalog.TitleContains("i"), catalog.InSubcategory("")))
	if len(got) != 3 {
		t.Fatalf("expected all cards, got %+v", got)
	}
	got[0].Title = "mutated"
	if !reflect.DeepEqual(index.Cards, before) {
		t.Fatalf("input index mutated")
	}

	pred := catalog.TitleContains("holi")
	once := catalog.FilterCards(index, pred)
	twice := catalog.FilterCards(domain.MasterIndex{Cards: once}, pred)
	if !reflect.DeepEqual(once, twice) {
		t.Fatalf("filter not idempotent: %+v vs %+v", once, twice)
	}
}

func TestFilterPublished(t *testing.T) {
	env := newTestEnv(t, nil)
	res, err := env.Aggregator.ListCards(env.Ctx, "wildlife-safaris", "en")
	if err != nil {
		t.Fatal(err)
	}
	got := catalog.FilterCards(res.Value, catalog.Published())
	if len(got) != 1 || got[0].Slug != "ranthambore" {
		t.Fatalf("expected only live cards, got %+v", got)
	}
	if len(res.Value.Cards) != 2 {
		t.Fatalf("listing itself must keep unpublished cards")
	}
}

func TestFilterCardsCopiesLiveFlag(t *testing.T) {
	live, hidden := true, false
	index := domain.MasterIndex{Cards: []domain.CardSummary{
		{Slug: "ranthambore", Title: "Ranthambore", Live: &live},
		{Slug: "kaziranga", Title: "Kaziranga", Live: &hidden},
		{Slug: "corbett", Title: "Corbett"},
	}}
	got := catalog.FilterCards(index, nil)
	if len(got) != 3 {
		t.Fatalf("expected every card, got %+v", got)
	}
	*got[0].Live = false
	*got[1].Live = true
	if !index.Cards[0].IsLive() || index.Cards[1].IsLive() {
		t.Fatalf("writing through a filtered card changed the input: %+v", index.Cards)
	}
	if got[2].Live != nil {
		t.Fatalf("absent flag must stay absent, got %v", *got[2].Live)
	}
	if len(catalog.FilterCards(index, catalog.Published())) != 2 {
		t.Fatalf("input visibility changed")
	}
}

func TestPrefetch(t *testing.T) {
	env := newTestEnv(t, nil)
	slugs := []string{"blue-pottery", "missing", "broken"}
	out, err := env.Resolver.Prefetch(env.Ctx, "crafts", slugs, "hi", 2)
	if err != nil {
		t.Fatalf("prefetch: %v", err)
	}
	if len(out) != 3 {
		t.Fatalf("expected 3 results, got %d", len(out))
	}
	if out[0].Slug != "blue-pottery" || !out[0].Result.Found || out[0].Err != nil {
		t.Fatalf("slot 0: %+v", out[0])
	}
	if out[1].Slug != "missing" || out[1].Result.Found || out[1].Err != nil {
		t.Fatalf("slot 1: %+v", out[1])
	}
	if out[2].Slug != "broken" || !errors.Is(out[2].Err, catalog.ErrLoad) {
		t.Fatalf("slot 2: %+v", out[2])
	}
	if _, err := env.Resolver.Prefetch(env.Ctx, "nope", slugs, "en", 0); !errors.Is(err, catalog.ErrNotRegistered) {
		t.Fatalf("expected ErrNotRegistered, got %v", err)
	}
}

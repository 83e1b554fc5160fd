package revalidate

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"
)

const testSecret = "whsec_test"

// recordingInvalidator records calls and fails the targets listed in fail.
type recordingInvalidator struct {
	mu    sync.Mutex
	paths []string
	tags  []string
	fail  map[string]error
	block map[string]bool
	panic map[string]bool
}

func (r *recordingInvalidator) do(ctx context.Context, target string) error {
	if r.panic[target] {
		panic("boom " + target)
	}
	if r.block[target] {
		<-ctx.Done()
		return ctx.Err()
	}
	return r.fail[target]
}

func (r *recordingInvalidator) InvalidatePath(ctx context.Context, path string) error {
	r.mu.Lock()
	r.paths = append(r.paths, path)
	r.mu.Unlock()
	return r.do(ctx, path)
}

func (r *recordingInvalidator) InvalidateTag(ctx context.Context, tag string) error {
	r.mu.Lock()
	r.tags = append(r.tags, tag)
	r.mu.Unlock()
	return r.do(ctx, tag)
}

func fixedNow() time.Time { return time.Date(2026, 5, 4, 10, 30, 0, 123e6, time.UTC) }

const articleBody = `{"_id":"abc123","_type":"article","_rev":"r1","slug":{"current":"hello-berlin"}}`

func TestGateway_ArticleScenario(t *testing.T) {
	inv := &recordingInvalidator{}
	g := NewGateway(testSecret, inv, WithClock(fixedNow))

	body := []byte(articleBody)
	res, err := g.Handle(context.Background(), body, Sign(body, testSecret))
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if !res.Success || res.Partial() {
		t.Fatalf("result = %+v", res)
	}
	if want := []string{"/", "/blog", "/blog/hello-berlin"}; !reflect.DeepEqual(res.Revalidated.Paths, want) {
		t.Fatalf("paths = %v, want %v", res.Revalidated.Paths, want)
	}
	if want := []string{"articles", "article-abc123"}; !reflect.DeepEqual(res.Revalidated.Tags, want) {
		t.Fatalf("tags = %v, want %v", res.Revalidated.Tags, want)
	}
	if res.Timestamp != "2026-05-04T10:30:00.123Z" {
		t.Fatalf("timestamp = %q", res.Timestamp)
	}
	if res.Message != "Revalidation triggered" || res.DocumentType != DocArticle {
		t.Fatalf("message/type = %q/%v", res.Message, res.DocumentType)
	}
	if !reflect.DeepEqual(inv.paths, res.Revalidated.Paths) || !reflect.DeepEqual(inv.tags, res.Revalidated.Tags) {
		t.Fatalf("invalidator saw paths=%v tags=%v", inv.paths, inv.tags)
	}
}

func TestGateway_PartialFailure(t *testing.T) {
	inv := &recordingInvalidator{fail: map[string]error{"/blog": errors.New("renderer down")}}
	var outcomes []string
	g := NewGateway(testSecret, inv, WithOnInvalidate(func(kind, outcome string) {
		outcomes = append(outcomes, kind+":"+outcome)
	}))

	body := []byte(articleBody)
	res, err := g.Handle(context.Background(), body, Sign(body, testSecret))
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if !res.Success {
		t.Fatal("partial failure must still report success")
	}
	if want := []string{"/", "/blog/hello-berlin"}; !reflect.DeepEqual(res.Revalidated.Paths, want) {
		t.Fatalf("paths = %v, want %v", res.Revalidated.Paths, want)
	}
	if len(res.Failed) != 1 || res.Failed[0].Kind != KindPath || res.Failed[0].Target != "/blog" {
		t.Fatalf("failed = %+v", res.Failed)
	}
	if !reflect.DeepEqual(inv.paths, []string{"/", "/blog", "/blog/hello-berlin"}) {
		t.Fatalf("later paths were skipped: %v", inv.paths)
	}
	want := []string{"path:ok", "path:error", "path:ok", "tag:ok", "tag:ok"}
	if !reflect.DeepEqual(outcomes, want) {
		t.Fatalf("outcomes = %v, want %v", outcomes, want)
	}
}

func TestGateway_TagFailureAndPanic(t *testing.T) {
	inv := &recordingInvalidator{
		fail:  map[string]error{"articles": errors.New("nope")},
		panic: map[string]bool{"/": true},
	}
	g := NewGateway(testSecret, inv)

	body := []byte(articleBody)
	res, err := g.Handle(context.Background(), body, Sign(body, testSecret))
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if want := []string{"/blog", "/blog/hello-berlin"}; !reflect.DeepEqual(res.Revalidated.Paths, want) {
		t.Fatalf("paths = %v", res.Revalidated.Paths)
	}
	if want := []string{"article-abc123"}; !reflect.DeepEqual(res.Revalidated.Tags, want) {
		t.Fatalf("tags = %v", res.Revalidated.Tags)
	}
	if len(res.Failed) != 2 {
		t.Fatalf("failed = %+v", res.Failed)
	}
}

func TestGateway_PerCallTimeout(t *testing.T) {
	inv := &recordingInvalidator{block: map[string]bool{"/gallery": true}}
	g := NewGateway(testSecret, inv, WithCallTimeout(20*time.Millisecond))

	body := []byte(`{"_id":"p1","_type":"photo","_rev":"r"}`)
	start := time.Now()
	res, err := g.Handle(context.Background(), body, Sign(body, testSecret))
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if time.Since(start) > 2*time.Second {
		t.Fatal("timeout not applied")
	}
	if !reflect.DeepEqual(res.Revalidated.Paths, []string{"/gallery/photos"}) {
		t.Fatalf("paths = %v", res.Revalidated.Paths)
	}
	if len(res.Failed) != 1 || !errors.Is(res.Failed[0].Err, context.DeadlineExceeded) {
		t.Fatalf("failed = %+v", res.Failed)
	}
}

func TestGateway_NotConfigured(t *testing.T) {
	inv := &recordingInvalidator{}
	g := NewGateway("", inv)
	if g.Configured() {
		t.Fatal("Configured = true")
	}

	body := []byte(articleBody)
	_, err := g.Handle(context.Background(), body, Sign(body, ""))
	if !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("err = %v, want ErrNotConfigured", err)
	}
	if len(inv.paths)+len(inv.tags) != 0 {
		t.Fatal("invalidations ran without a secret")
	}
}

func TestGateway_BadSignatureHasNoSideEffects(t *testing.T) {
	inv := &recordingInvalidator{}
	g := NewGateway(testSecret, inv)

	// not even valid JSON: parsing must not be reached
	body := []byte(`{{{`)
	for _, sig := range []string{"", "sha256=00", Sign(body, "wrong")} {
		_, err := g.Handle(context.Background(), body, sig)
		if !errors.Is(err, ErrInvalidSignature) {
			t.Fatalf("sig %q: err = %v, want ErrInvalidSignature", sig, err)
		}
	}
	if len(inv.paths)+len(inv.tags) != 0 {
		t.Fatal("invalidations ran for a bad signature")
	}
}

func TestGateway_MalformedBody(t *testing.T) {
	inv := &recordingInvalidator{}
	g := NewGateway(testSecret, inv)

	body := []byte(`{"_id":"abc"`)
	_, err := g.Handle(context.Background(), body, Sign(body, testSecret))
	if !errors.Is(err, ErrInvalidPayload) {
		t.Fatalf("err = %v, want ErrInvalidPayload", err)
	}
	if len(inv.paths)+len(inv.tags) != 0 {
		t.Fatal("invalidations ran for a malformed body")
	}
}

func TestGateway_UnknownTypeOnlyHome(t *testing.T) {
	inv := &recordingInvalidator{}
	g := NewGateway(testSecret, inv)

	body := []byte(`{"_id":"x","_type":"author","_rev":"r"}`)
	res, err := g.Handle(context.Background(), body, Sign(body, testSecret))
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if !reflect.DeepEqual(res.Revalidated.Paths, []string{"/"}) || len(res.Revalidated.Tags) != 0 {
		t.Fatalf("revalidated = %+v", res.Revalidated)
	}
	if res.Revalidated.Tags == nil {
		t.Fatal("tags should encode as [] not null")
	}
}

func TestGateway_NilInvalidator(t *testing.T) {
	g := NewGateway(testSecret, nil)
	body := []byte(`{"_id":"s","_type":"siteSettings"}`)
	res, err := g.Handle(context.Background(), body, Sign(body, testSecret))
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if len(res.Revalidated.Paths) != 0 || len(res.Failed) != 2 {
		t.Fatalf("result = %+v", res)
	}
}

func TestMulti_CallsAllAndJoins(t *testing.T) {
	a := &recordingInvalidator{fail: map[string]error{"/": errors.New("a failed")}}
	b := &recordingInvalidator{}
	m := Multi(a, nil, b)

	err := m.InvalidatePath(context.Background(), "/")
	if err == nil || err.Error() != "a failed" {
		t.Fatalf("err = %v", err)
	}
	if len(b.paths) != 1 {
		t.Fatal("second invalidator skipped after first failed")
	}
	if err := m.InvalidateTag(context.Background(), "photos"); err != nil {
		t.Fatalf("InvalidateTag: %v", err)
	}
	if len(a.tags) != 1 || len(b.tags) != 1 {
		t.Fatal("tag not fanned out")
	}
}

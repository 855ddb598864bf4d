package store

import (
	"context"
	"errors"
	"testing"

	"promptproof/pkg/provenance"
)

type fakeFetcher struct {
	res *provenance.FetchResult
	err error
}

func (f *fakeFetcher) Fetch(ctx context.Context, txID string) (*provenance.FetchResult, error) {
	return f.res, f.err
}

func TestCachingFetcherStoresPayload(t *testing.T) {
	st := openTestStore(t)
	inner := &fakeFetcher{
		res: &provenance.FetchResult{
			Record:  &provenance.Record{Project: "p"},
			URL:     "https://arweave.net/tx-cache",
			Payload: []byte(`{"project":"p"}`),
		},
	}

	cf := NewCachingFetcher(inner, st, nil)
	res, err := cf.Fetch(context.Background(), "tx-cache")
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if res.Record.Project != "p" {
		t.Errorf("result not passed through: %+v", res.Record)
	}

	cached, err := st.GetCachedProof("tx-cache")
	if err != nil {
		t.Fatalf("GetCachedProof failed: %v", err)
	}
	if cached == nil {
		t.Fatal("expected cached proof")
	}
	if string(cached.Payload) != `{"project":"p"}` {
		t.Errorf("cached payload = %s", cached.Payload)
	}
	if cached.SourceURL != "https://arweave.net/tx-cache" {
		t.Errorf("cached source = %s", cached.SourceURL)
	}
	if cached.FetchedAt == 0 {
		t.Error("FetchedAt not set")
	}
}

func TestCachingFetcherPropagatesError(t *testing.T) {
	st := openTestStore(t)
	inner := &fakeFetcher{err: errors.New("gateway down")}

	cf := NewCachingFetcher(inner, st, nil)
	if _, err := cf.Fetch(context.Background(), "tx-err"); err == nil {
		t.Fatal("expected error")
	}

	cached, err := st.GetCachedProof("tx-err")
	if err != nil {
		t.Fatalf("GetCachedProof failed: %v", err)
	}
	if cached != nil {
		t.Error("failed fetch must not populate the cache")
	}
}

func TestCachingFetcherSurvivesCacheFailure(t *testing.T) {
	st := openTestStore(t)
	inner := &fakeFetcher{
		res: &provenance.FetchResult{
			Record:  &provenance.Record{},
			URL:     "https://arweave.net/tx-broken-db",
			Payload: []byte(`{}`),
		},
	}
	cf := NewCachingFetcher(inner, st, nil)

	// A closed database makes the cache write fail; the fetch result must
	// still come back clean.
	if err := st.Close(); err != nil {
		t.Fatalf("close store: %v", err)
	}
	res, err := cf.Fetch(context.Background(), "tx-broken-db")
	if err != nil {
		t.Fatalf("Fetch should tolerate cache failure, got %v", err)
	}
	if res == nil || res.URL != "https://arweave.net/tx-broken-db" {
		t.Errorf("unexpected result: %+v", res)
	}
}

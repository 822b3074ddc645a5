package session

import (
	"context"
	"crypto/sha256"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewStore(rdb, "test"), mr
}

func sampleSession(handle string) *Session {
	now := time.Now()
	return &Session{
		Handle:        handle,
		UserID:        "user-1",
		RecipeUserID:  "recipe-1",
		TenantID:      "public",
		RefreshHash:   sha256.Sum256([]byte("secret-1")),
		AntiCSRFToken: "csrf",
		AccessPayload: []byte(`{"role":"admin"}`),
		CreatedAt:     now.Unix(),
		ExpiresAt:     now.Add(time.Hour).Unix(),
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	in := sampleSession("h")
	in.Data = []byte(`{"k":1}`)
	in.ParentRefreshHash = sha256.Sum256([]byte("secret-0"))
	blob, err := Encode(in)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	out, err := Decode(blob)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.UserID != in.UserID || out.RecipeUserID != in.RecipeUserID || out.TenantID != in.TenantID ||
		out.AntiCSRFToken != in.AntiCSRFToken || out.RefreshHash != in.RefreshHash ||
		out.ParentRefreshHash != in.ParentRefreshHash ||
		string(out.AccessPayload) != string(in.AccessPayload) || string(out.Data) != string(in.Data) ||
		out.ExpiresAt != in.ExpiresAt || out.CreatedAt != in.CreatedAt {
		t.Fatalf("round trip mismatch: %+v", out)
	}
}

func TestDecodeRejectsTruncatedBlob(t *testing.T) {
	blob, _ := Encode(sampleSession("h"))
	for _, n := range []int{0, 1, 20, stringsOffset, len(blob) - 1} {
		if _, err := Decode(blob[:n]); err == nil {
			t.Fatalf("expected error for %d bytes", n)
		}
	}
}

func TestSaveGetDelete(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	if err := store.Save(ctx, sampleSession("h1")); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := store.Get(ctx, "h1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Handle != "h1" || got.UserID != "user-1" {
		t.Fatalf("unexpected session: %+v", got)
	}

	existed, err := store.Delete(ctx, "h1")
	if err != nil || !existed {
		t.Fatalf("first delete: existed=%v err=%v", existed, err)
	}
	existed, err = store.Delete(ctx, "h1")
	if err != nil || existed {
		t.Fatalf("second delete must be a no-op: existed=%v err=%v", existed, err)
	}
	if _, err := store.Get(ctx, "h1"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestRotateRefreshHash(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	sess := sampleSession("h1")
	if err := store.Save(ctx, sess); err != nil {
		t.Fatalf("save: %v", err)
	}

	next := sha256.Sum256([]byte("secret-2"))
	rotated, err := store.RotateRefreshHash(ctx, "h1", sess.RefreshHash, next)
	if err != nil {
		t.Fatalf("rotate: %v", err)
	}
	if rotated.RefreshHash != next || rotated.ParentRefreshHash != sess.RefreshHash || rotated.UserID != "user-1" {
		t.Fatalf("unexpected rotated session: %+v", rotated)
	}

	replayed, err := store.RotateRefreshHash(ctx, "h1", sess.RefreshHash, sha256.Sum256([]byte("x")))
	if !errors.Is(err, ErrRefreshHashMismatch) {
		t.Fatalf("expected mismatch on replay, got %v", err)
	}
	if replayed == nil || replayed.UserID != "user-1" || replayed.Handle != "h1" {
		t.Fatalf("expected the revoked record on replay, got %+v", replayed)
	}
	if _, err := store.Get(ctx, "h1"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected replay to delete the session, got %v", err)
	}
	if _, err := store.RotateRefreshHash(ctx, "h1", next, next); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected not found after deletion, got %v", err)
	}
}

func TestRotateRefreshHashUnknownKeepsSession(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	sess := sampleSession("h1")
	if err := store.Save(ctx, sess); err != nil {
		t.Fatalf("save: %v", err)
	}

	// Before the first rotation the parent is zero; a zero hash must not match it.
	for _, presented := range [][32]byte{sha256.Sum256([]byte("forged")), {}} {
		got, err := store.RotateRefreshHash(ctx, "h1", presented, sha256.Sum256([]byte("x")))
		if !errors.Is(err, ErrRefreshHashUnknown) {
			t.Fatalf("expected ErrRefreshHashUnknown, got %v", err)
		}
		if got != nil {
			t.Fatalf("expected no record for an unknown hash, got %+v", got)
		}
	}
	if _, err := store.Get(ctx, "h1"); err != nil {
		t.Fatalf("unknown hash must leave the session intact: %v", err)
	}

	next := sha256.Sum256([]byte("secret-2"))
	if _, err := store.RotateRefreshHash(ctx, "h1", sess.RefreshHash, next); err != nil {
		t.Fatalf("legitimate rotation after unknown hash: %v", err)
	}
	if _, err := store.RotateRefreshHash(ctx, "h1", sha256.Sum256([]byte("forged")), next); !errors.Is(err, ErrRefreshHashUnknown) {
		t.Fatalf("expected ErrRefreshHashUnknown after rotation, got %v", err)
	}
	got, err := store.Get(ctx, "h1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.RefreshHash != next {
		t.Fatalf("unknown hash must not rotate the session")
	}
}

func TestUpdateKeepsTTL(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()
	if err := store.Save(ctx, sampleSession("h1")); err != nil {
		t.Fatalf("save: %v", err)
	}
	before := mr.TTL("test:s:h1")

	updated, err := store.Update(ctx, "h1", func(s *Session) error {
		s.AccessPayload = []byte(`{"role":"viewer"}`)
		return nil
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if string(updated.AccessPayload) != `{"role":"viewer"}` {
		t.Fatalf("unexpected payload %s", updated.AccessPayload)
	}
	if after := mr.TTL("test:s:h1"); after <= 0 || after > before {
		t.Fatalf("expected ttl to be kept, before=%v after=%v", before, after)
	}

	if _, err := store.Update(ctx, "missing", func(*Session) error { return nil }); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestDeleteAllForUserAndIndexPruning(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()
	for _, h := range []string{"a", "b", "c"} {
		if err := store.Save(ctx, sampleSession(h)); err != nil {
			t.Fatalf("save %s: %v", h, err)
		}
	}
	mr.Del("test:s:c")

	handles, err := store.ListHandles(ctx, "public", "user-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(handles) != 2 {
		t.Fatalf("expected 2 live handles, got %v", handles)
	}

	removed, err := store.DeleteAllForUser(ctx, "public", "user-1")
	if err != nil {
		t.Fatalf("delete all: %v", err)
	}
	if len(removed) != 2 {
		t.Fatalf("expected 2 removed, got %v", removed)
	}

	tenants, err := store.TenantsForUser(ctx, "user-1")
	if err != nil || len(tenants) != 1 || tenants[0] != "public" {
		t.Fatalf("unexpected tenants %v err=%v", tenants, err)
	}
}

func FuzzDecode(f *testing.F) {
	blob, _ := Encode(sampleSession("h"))
	f.Add(blob)
	f.Add([]byte{})
	f.Add([]byte{1})
	f.Fuzz(func(t *testing.T, data []byte) {
		_, _ = Decode(data)
	})
}

func TestRotateRefreshHashSingleWinner(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	sess := sampleSession("race")
	if err := store.Save(ctx, sess); err != nil {
		t.Fatalf("save: %v", err)
	}

	const workers = 16
	start := make(chan struct{})
	results := make(chan error, workers)
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		next := sha256.Sum256([]byte{byte(i)})
		go func(next [32]byte) {
			defer wg.Done()
			<-start
			_, err := store.RotateRefreshHash(ctx, "race", sess.RefreshHash, next)
			results <- err
		}(next)
	}
	close(start)
	wg.Wait()
	close(results)

	winners := 0
	for err := range results {
		switch {
		case err == nil:
			winners++
		case errors.Is(err, ErrRefreshHashMismatch), errors.Is(err, ErrSessionNotFound):
		default:
			t.Fatalf("unexpected rotate error: %v", err)
		}
	}
	if winners != 1 {
		t.Fatalf("expected exactly one winner, got %d", winners)
	}
}

package memory

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"readycore/internal/blob/core"
)

func TestPutGetDelete(t *testing.T) {
	store := New()
	ctx := context.Background()

	info, err := store.Put(ctx, "evidence/a.txt", strings.NewReader("payload"), core.PutOptions{ContentType: "text/plain"})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if info.Size != 7 || info.ETag == "" {
		t.Fatalf("info = %+v", info)
	}

	got, rc, err := store.Get(ctx, "evidence/a.txt")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	body, _ := io.ReadAll(rc)
	_ = rc.Close()
	if string(body) != "payload" || got.ContentType != "text/plain" {
		t.Fatalf("body=%q info=%+v", body, got)
	}

	existed, err := store.Delete(ctx, "evidence/a.txt")
	if err != nil || !existed {
		t.Fatalf("delete: existed=%v err=%v", existed, err)
	}
	existed, err = store.Delete(ctx, "evidence/a.txt")
	if err != nil || existed {
		t.Fatalf("second delete: existed=%v err=%v", existed, err)
	}
}

func TestPutEnforcesCreateOnly(t *testing.T) {
	store := New()
	ctx := context.Background()

	if _, err := store.Put(ctx, "k", strings.NewReader("one"), core.PutOptions{}); err != nil {
		t.Fatalf("first put: %v", err)
	}
	if _, err := store.Put(ctx, "k", strings.NewReader("two"), core.PutOptions{}); err == nil {
		t.Fatalf("expected duplicate key error")
	}
	if _, err := store.Put(ctx, "  ", strings.NewReader("x"), core.PutOptions{}); err == nil {
		t.Fatalf("expected empty key error")
	}
}

func TestListSortedByKey(t *testing.T) {
	store := New()
	ctx := context.Background()

	for _, key := range []string{"b/2", "a/1", "b/1", "c/3"} {
		if _, err := store.Put(ctx, key, strings.NewReader(key), core.PutOptions{}); err != nil {
			t.Fatalf("put %s: %v", key, err)
		}
	}
	infos, err := store.List(ctx, "b/")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(infos) != 2 || infos[0].Key != "b/1" || infos[1].Key != "b/2" {
		t.Fatalf("infos = %+v", infos)
	}
}

func TestPresignURLGETOnly(t *testing.T) {
	store := New()
	ctx := context.Background()

	url, err := store.PresignURL(ctx, "k", core.SignedURLOptions{Method: "GET"})
	if err != nil || url == "" {
		t.Fatalf("presign: url=%q err=%v", url, err)
	}
	if _, err := store.PresignURL(ctx, "k", core.SignedURLOptions{Method: "PUT"}); !errors.Is(err, core.ErrUnsupported) {
		t.Fatalf("expected ErrUnsupported, got %v", err)
	}
}

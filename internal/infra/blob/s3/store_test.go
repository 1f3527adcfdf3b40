package s3

import (
	"context"
	"io"
	"strings"
	"testing"

	"readycore/internal/blob/core"
)

func TestMockPutGetRoundTrip(t *testing.T) {
	store := NewMockForTests()
	ctx := context.Background()

	info, err := store.Put(ctx, "criteria/c1/report.json", strings.NewReader(`{"rows":[]}`), core.PutOptions{ContentType: "application/json"})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if info.Key != "criteria/c1/report.json" {
		t.Fatalf("key = %q", info.Key)
	}
	if info.Size != int64(len(`{"rows":[]}`)) {
		t.Fatalf("size = %d", info.Size)
	}

	got, rc, err := store.Get(ctx, "criteria/c1/report.json")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	body, err := io.ReadAll(rc)
	_ = rc.Close()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(body) != `{"rows":[]}` {
		t.Fatalf("body = %q", body)
	}
	if got.ContentType != "application/json" {
		t.Fatalf("content type = %q", got.ContentType)
	}
}

func TestMockPutIsCreateOnly(t *testing.T) {
	store := NewMockForTests()
	ctx := context.Background()

	if _, err := store.Put(ctx, "k", strings.NewReader("one"), core.PutOptions{}); err != nil {
		t.Fatalf("first put: %v", err)
	}
	if _, err := store.Put(ctx, "k", strings.NewReader("two"), core.PutOptions{}); err == nil {
		t.Fatalf("expected duplicate key error")
	}
}

func TestMockHeadAndDelete(t *testing.T) {
	store := NewMockForTests()
	ctx := context.Background()

	if _, err := store.Head(ctx, "missing"); err == nil {
		t.Fatalf("head should fail for absent key")
	}

	if _, err := store.Put(ctx, "doc", strings.NewReader("hello"), core.PutOptions{}); err != nil {
		t.Fatalf("put: %v", err)
	}
	info, err := store.Head(ctx, "doc")
	if err != nil {
		t.Fatalf("head: %v", err)
	}
	if info.Size != 5 {
		t.Fatalf("size = %d", info.Size)
	}

	existed, err := store.Delete(ctx, "doc")
	if err != nil || !existed {
		t.Fatalf("delete: existed=%v err=%v", existed, err)
	}
	if _, err := store.Head(ctx, "doc"); err == nil {
		t.Fatalf("head should fail after delete")
	}
}

func TestMockListByPrefix(t *testing.T) {
	store := NewMockForTests()
	ctx := context.Background()

	for _, key := range []string{"reports/p1/a", "reports/p1/b", "reports/p2/c"} {
		if _, err := store.Put(ctx, key, strings.NewReader(key), core.PutOptions{}); err != nil {
			t.Fatalf("put %s: %v", key, err)
		}
	}
	infos, err := store.List(ctx, "reports/p1/")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(infos) != 2 || infos[0].Key != "reports/p1/a" || infos[1].Key != "reports/p1/b" {
		t.Fatalf("infos = %+v", infos)
	}
}

func TestMockPresignURL(t *testing.T) {
	store := NewMockForTests()
	ctx := context.Background()

	url, err := store.PresignURL(ctx, "reports/p1/a", core.SignedURLOptions{})
	if err != nil {
		t.Fatalf("presign: %v", err)
	}
	if !strings.Contains(url, "reports/p1/a") {
		t.Fatalf("url = %q", url)
	}
	if _, err := store.PresignURL(ctx, "reports/p1/a", core.SignedURLOptions{Method: "DELETE"}); err == nil {
		t.Fatalf("expected unsupported method error")
	}
}

func TestNewRequiresBucket(t *testing.T) {
	if _, err := New(context.Background(), Config{}); err == nil {
		t.Fatalf("expected bucket required error")
	}
}

func TestOpenFromEnvRequiresBucket(t *testing.T) {
	t.Setenv("READYCORE_BLOB_S3_BUCKET", "")
	if _, err := OpenFromEnv(context.Background()); err == nil {
		t.Fatalf("expected error without bucket env")
	}
}

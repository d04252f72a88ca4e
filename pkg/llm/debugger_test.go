package llm

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"leoactivation/pkg/utils"
)

func TestPruneDebugDumps(t *testing.T) {
	t.Parallel()

	root := t.TempDir()

	stale := fmt.Sprintf("%08x0000000000000001", uint32(time.Now().Add(-48*time.Hour).Unix()))
	fresh := utils.GenerateID()
	for _, name := range []string{stale, fresh, "gemini"} {
		if err := os.MkdirAll(filepath.Join(root, name, "sub"), 0755); err != nil {
			t.Fatalf("mkdir %s: %v", name, err)
		}
	}

	PruneDebugDumps(root, 24*time.Hour)

	if _, err := os.Stat(filepath.Join(root, stale)); !os.IsNotExist(err) {
		t.Fatalf("stale dump dir survived pruning: %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, fresh)); err != nil {
		t.Fatalf("fresh dump dir was removed: %v", err)
	}
	// provider 層目錄沒有時間戳前綴，不在清理範圍
	if _, err := os.Stat(filepath.Join(root, "gemini")); err != nil {
		t.Fatalf("provider dir was removed: %v", err)
	}
}

func TestPruneDebugDumpsMissingRoot(t *testing.T) {
	t.Parallel()

	// 不存在的目錄只代表沒東西好清，不該 panic
	PruneDebugDumps(filepath.Join(t.TempDir(), "never-created"), time.Hour)
}

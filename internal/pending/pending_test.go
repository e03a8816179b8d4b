package pending

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestPutGetClear(t *testing.T) {
	s := NewStore(0)

	op := &Operation{
		Kind:    KindVendorDraft,
		AgentID: "payable",
		Fields:  map[string]string{"name": "Acme Corp"},
	}
	if replaced := s.Put("user-1", op); replaced != nil {
		t.Errorf("expected no replaced draft, got %+v", replaced)
	}

	got := s.Get("user-1", KindVendorDraft)
	if got == nil {
		t.Fatal("expected draft, got nil")
	}
	if got.Fields["name"] != "Acme Corp" {
		t.Errorf("expected name 'Acme Corp', got '%s'", got.Fields["name"])
	}

	// Other users and kinds are isolated
	if s.Get("user-2", KindVendorDraft) != nil {
		t.Error("draft leaked across users")
	}
	if s.Get("user-1", KindBillDraft) != nil {
		t.Error("draft leaked across kinds")
	}

	s.Clear("user-1", KindVendorDraft)
	if s.Get("user-1", KindVendorDraft) != nil {
		t.Error("expected draft cleared")
	}
}

func TestPutOverwritesSameKind(t *testing.T) {
	s := NewStore(0)

	s.Put("user-1", &Operation{Kind: KindVendorDraft, AgentID: "payable", Fields: map[string]string{"name": "First"}})
	replaced := s.Put("user-1", &Operation{Kind: KindVendorDraft, AgentID: "payable", Fields: map[string]string{"name": "Second"}})

	if replaced == nil || replaced.Fields["name"] != "First" {
		t.Fatalf("expected replaced draft 'First', got %+v", replaced)
	}
	if got := s.Get("user-1", KindVendorDraft); got.Fields["name"] != "Second" {
		t.Errorf("expected last write to win, got '%s'", got.Fields["name"])
	}
}

func TestMergeKeepsExistingOnEmpty(t *testing.T) {
	s := NewStore(0)
	s.Put("user-1", &Operation{
		Kind:    KindVendorDraft,
		AgentID: "payable",
		Fields:  map[string]string{"a": "keep", "b": "old"},
	})

	merged := s.Merge("user-1", KindVendorDraft, map[string]string{"a": "", "b": "x"})
	if merged == nil {
		t.Fatal("expected merged draft")
	}
	if merged.Fields["a"] != "keep" {
		t.Errorf("empty value overwrote 'a': got '%s'", merged.Fields["a"])
	}
	if merged.Fields["b"] != "x" {
		t.Errorf("expected 'b' updated to 'x', got '%s'", merged.Fields["b"])
	}
}

func TestMergeWithoutDraft(t *testing.T) {
	s := NewStore(0)
	if merged := s.Merge("user-1", KindVendorDraft, map[string]string{"a": "x"}); merged != nil {
		t.Errorf("expected nil merging into absent draft, got %+v", merged)
	}
}

func TestFirstFollowsConfirmationPriority(t *testing.T) {
	s := NewStore(0)

	s.Put("user-1", &Operation{Kind: KindVendorDraft, AgentID: "payable"})
	s.Put("user-1", &Operation{Kind: KindBillDraft, AgentID: "payable"})

	if op := s.First("user-1"); op == nil || op.Kind != KindBillDraft {
		t.Fatalf("expected bill draft to outrank vendor draft, got %+v", op)
	}

	s.Put("user-1", &Operation{Kind: KindDuplicateConfirm, AgentID: "payable"})
	if op := s.First("user-1"); op == nil || op.Kind != KindDuplicateConfirm {
		t.Fatalf("expected duplicate confirmation to outrank all, got %+v", op)
	}

	if s.First("user-2") != nil {
		t.Error("expected nil for user with no drafts")
	}
}

func TestTTLExpiry(t *testing.T) {
	s := NewStore(50 * time.Millisecond)

	s.Put("user-1", &Operation{Kind: KindVendorDraft, AgentID: "payable", Fields: map[string]string{"name": "Acme"}})
	if s.Get("user-1", KindVendorDraft) == nil {
		t.Fatal("fresh draft should be visible")
	}

	time.Sleep(80 * time.Millisecond)
	if s.Get("user-1", KindVendorDraft) != nil {
		t.Error("expired draft should be invisible")
	}

	// Sweep counts and removes expired entries
	s.Put("user-2", &Operation{Kind: KindBillDraft, AgentID: "payable"})
	time.Sleep(80 * time.Millisecond)
	if n := s.SweepExpired(); n != 1 {
		t.Errorf("expected 1 swept, got %d", n)
	}
}

func TestConcurrentUsersDoNotInterleave(t *testing.T) {
	s := NewStore(0)

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			user := fmt.Sprintf("user-%d", i)
			s.Put(user, &Operation{Kind: KindVendorDraft, AgentID: "payable", Fields: map[string]string{"name": user}})
			for j := 0; j < 50; j++ {
				s.Merge(user, KindVendorDraft, map[string]string{"email": fmt.Sprintf("e%d@x", j)})
			}
		}(i)
	}
	wg.Wait()

	for i := 0; i < 32; i++ {
		user := fmt.Sprintf("user-%d", i)
		op := s.Get(user, KindVendorDraft)
		if op == nil {
			t.Fatalf("missing draft for %s", user)
		}
		if op.Fields["name"] != user {
			t.Errorf("draft for %s holds name %s", user, op.Fields["name"])
		}
	}
}

func TestGetReturnsCopy(t *testing.T) {
	s := NewStore(0)
	s.Put("user-1", &Operation{Kind: KindVendorDraft, AgentID: "payable", Fields: map[string]string{"name": "Acme"}})

	got := s.Get("user-1", KindVendorDraft)
	got.Fields["name"] = "Mutated"

	if again := s.Get("user-1", KindVendorDraft); again.Fields["name"] != "Acme" {
		t.Errorf("stored draft mutated through returned copy: %s", again.Fields["name"])
	}
}

package store

import (
	"context"
	"sync"
	"testing"
)

// setupTestStore creates an in-memory test database
func setupTestStore(t *testing.T) *Store {
	s, err := New(":memory:")
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func createTestUser(t *testing.T, s *Store, email string) int64 {
	id, err := s.CreateUser(context.Background(), email, "$2a$10$hash")
	if err != nil {
		t.Fatalf("Failed to create user: %v", err)
	}
	return id
}

func TestCreateUser_DuplicateEmailRejected(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	if _, err := s.CreateUser(ctx, "a@example.com", "hash1"); err != nil {
		t.Fatalf("Failed to create user: %v", err)
	}
	if _, err := s.CreateUser(ctx, "a@example.com", "hash2"); err == nil {
		t.Error("Expected duplicate email to fail")
	}
}

func TestGetUserByEmail(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	id := createTestUser(t, s, "a@example.com")

	u, err := s.GetUserByEmail(ctx, "a@example.com")
	if err != nil {
		t.Fatalf("GetUserByEmail failed: %v", err)
	}
	if u == nil || u.ID != id {
		t.Errorf("Expected user %d, got %+v", id, u)
	}

	missing, err := s.GetUserByEmail(ctx, "nobody@example.com")
	if err != nil {
		t.Fatalf("GetUserByEmail failed: %v", err)
	}
	if missing != nil {
		t.Errorf("Expected nil for unknown email, got %+v", missing)
	}
}

func TestFindOrCreateUserDrug_Idempotent(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	userID := createTestUser(t, s, "a@example.com")

	first, created, err := s.FindOrCreateUserDrug(ctx, userID, "1191", "aspirin 81 MG", []string{"Aspirin"}, []string{"Pill"})
	if err != nil {
		t.Fatalf("First add failed: %v", err)
	}
	if !created {
		t.Error("Expected created=true on first add")
	}

	second, created, err := s.FindOrCreateUserDrug(ctx, userID, "1191", "aspirin 81 MG", []string{"Aspirin"}, []string{"Pill"})
	if err != nil {
		t.Fatalf("Second add failed: %v", err)
	}
	if created {
		t.Error("Expected created=false on repeat add")
	}
	if second.ID != first.ID {
		t.Errorf("Expected the same record back, got %d and %d", first.ID, second.ID)
	}
	if second.Name != first.Name || second.RxCUI != first.RxCUI {
		t.Errorf("Expected identical record contents, got %+v vs %+v", first, second)
	}

	drugs, err := s.ListUserDrugs(ctx, userID)
	if err != nil {
		t.Fatalf("ListUserDrugs failed: %v", err)
	}
	if len(drugs) != 1 {
		t.Errorf("Expected exactly 1 persisted record, got %d", len(drugs))
	}
}

func TestFindOrCreateUserDrug_ConcurrentAddsCreateOneRecord(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	userID := createTestUser(t, s, "a@example.com")

	const n = 10
	results := make([]bool, n)
	errs := make([]error, n)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, created, err := s.FindOrCreateUserDrug(ctx, userID, "1191", "aspirin", nil, nil)
			results[i] = created
			errs[i] = err
		}(i)
	}
	wg.Wait()

	createdCount := 0
	for i := 0; i < n; i++ {
		if errs[i] != nil {
			t.Fatalf("Concurrent add %d failed: %v", i, errs[i])
		}
		if results[i] {
			createdCount++
		}
	}
	if createdCount != 1 {
		t.Errorf("Expected exactly one created=true, got %d", createdCount)
	}

	drugs, err := s.ListUserDrugs(ctx, userID)
	if err != nil {
		t.Fatalf("ListUserDrugs failed: %v", err)
	}
	if len(drugs) != 1 {
		t.Errorf("Expected exactly 1 persisted record, got %d", len(drugs))
	}
}

func TestFindOrCreateUserDrug_DistinctUsersKeepSeparateRecords(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	userA := createTestUser(t, s, "a@example.com")
	userB := createTestUser(t, s, "b@example.com")

	_, createdA, err := s.FindOrCreateUserDrug(ctx, userA, "1191", "aspirin", nil, nil)
	if err != nil {
		t.Fatalf("Add for user A failed: %v", err)
	}
	_, createdB, err := s.FindOrCreateUserDrug(ctx, userB, "1191", "aspirin", nil, nil)
	if err != nil {
		t.Fatalf("Add for user B failed: %v", err)
	}
	if !createdA || !createdB {
		t.Errorf("Expected both users to create their own record, got %v and %v", createdA, createdB)
	}
}

func TestFindOrCreateUserDrug_RoundTripsAttributeLists(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	userID := createTestUser(t, s, "a@example.com")

	_, _, err := s.FindOrCreateUserDrug(ctx, userID, "1191", "aspirin", []string{"Aspirin", "Caffeine"}, []string{"Pill"})
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	got, err := s.GetUserDrug(ctx, userID, "1191")
	if err != nil {
		t.Fatalf("GetUserDrug failed: %v", err)
	}
	if got == nil {
		t.Fatal("Expected a record")
	}
	if len(got.BaseNames) != 2 || got.BaseNames[0] != "Aspirin" || got.BaseNames[1] != "Caffeine" {
		t.Errorf("Unexpected base names: %+v", got.BaseNames)
	}
	if len(got.DoseForms) != 1 || got.DoseForms[0] != "Pill" {
		t.Errorf("Unexpected dose forms: %+v", got.DoseForms)
	}
}

func TestDeleteUserDrug(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	userID := createTestUser(t, s, "a@example.com")

	// Deleting a non-existent pair is a no-op
	removed, err := s.DeleteUserDrug(ctx, userID, "1191")
	if err != nil {
		t.Fatalf("DeleteUserDrug failed: %v", err)
	}
	if removed {
		t.Error("Expected removed=false for non-existent pair")
	}

	if _, _, err := s.FindOrCreateUserDrug(ctx, userID, "1191", "aspirin", nil, nil); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	removed, err = s.DeleteUserDrug(ctx, userID, "1191")
	if err != nil {
		t.Fatalf("DeleteUserDrug failed: %v", err)
	}
	if !removed {
		t.Error("Expected removed=true")
	}

	drugs, err := s.ListUserDrugs(ctx, userID)
	if err != nil {
		t.Fatalf("ListUserDrugs failed: %v", err)
	}
	if len(drugs) != 0 {
		t.Errorf("Expected empty list after delete, got %d", len(drugs))
	}
}

func TestDeleteUserDrug_DoesNotTouchOtherUsers(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	userA := createTestUser(t, s, "a@example.com")
	userB := createTestUser(t, s, "b@example.com")

	if _, _, err := s.FindOrCreateUserDrug(ctx, userB, "1191", "aspirin", nil, nil); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	removed, err := s.DeleteUserDrug(ctx, userA, "1191")
	if err != nil {
		t.Fatalf("DeleteUserDrug failed: %v", err)
	}
	if removed {
		t.Error("Expected removed=false: user A has no such drug")
	}

	drugs, err := s.ListUserDrugs(ctx, userB)
	if err != nil {
		t.Fatalf("ListUserDrugs failed: %v", err)
	}
	if len(drugs) != 1 {
		t.Errorf("Expected user B's record untouched, got %d records", len(drugs))
	}
}

func TestListUserDrugs_NewestFirst(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	userID := createTestUser(t, s, "a@example.com")

	for _, rxcui := range []string{"100", "200", "300"} {
		if _, _, err := s.FindOrCreateUserDrug(ctx, userID, rxcui, "drug "+rxcui, nil, nil); err != nil {
			t.Fatalf("Add failed: %v", err)
		}
	}

	drugs, err := s.ListUserDrugs(ctx, userID)
	if err != nil {
		t.Fatalf("ListUserDrugs failed: %v", err)
	}
	if len(drugs) != 3 {
		t.Fatalf("Expected 3 records, got %d", len(drugs))
	}
	if drugs[0].RxCUI != "300" || drugs[2].RxCUI != "100" {
		t.Errorf("Expected newest first, got %s, %s, %s", drugs[0].RxCUI, drugs[1].RxCUI, drugs[2].RxCUI)
	}
}

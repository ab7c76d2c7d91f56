package fault

import (
	"errors"
	"fmt"
	"io"
	"testing"
)

func TestErrorIs(t *testing.T) {
	err := fmt.Errorf("engine: create archive: %w", New(EmptyArchive, "archive"))

	if !errors.Is(err, EmptyArchive) {
		t.Error("errors.Is(err, EmptyArchive) = false, want true")
	}
	if errors.Is(err, DuplicatedArchive) {
		t.Error("errors.Is(err, DuplicatedArchive) = true, want false")
	}
	if !errors.Is(err, &Error{Kind: EmptyArchive}) {
		t.Error("errors.Is against *Error with same kind should match")
	}
}

func TestWrapKeepsCause(t *testing.T) {
	err := Wrap(Storage, "read", io.ErrUnexpectedEOF)
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Error("wrapped cause lost")
	}
	if KindOf(err) != Storage {
		t.Errorf("KindOf = %v, want %v", KindOf(err), Storage)
	}
	if Wrap(Storage, "read", nil) != nil {
		t.Error("Wrap(nil) should be nil")
	}
}

func TestErrorMessage(t *testing.T) {
	err := Newf(NotAuthenticated, "degree", "%s", "permission denied")
	want := "degree: not authenticated: permission denied"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}

func TestCategory(t *testing.T) {
	tests := []struct {
		kind Kind
		want Category
	}{
		{Upstream, CategoryTransient},
		{NotAuthenticated, CategoryNotAuthenticated},
		{InvalidArchiveName, CategoryValidation},
		{ArchiveNotFound, CategoryValidation},
		{MalformedLog, CategoryStorage},
		{Consistency, CategoryConsistency},
		{Unknown, CategoryUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			if got := tt.kind.Category(); got != tt.want {
				t.Errorf("Category() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestKindOfPlainError(t *testing.T) {
	if got := KindOf(errors.New("boom")); got != Unknown {
		t.Errorf("KindOf(plain) = %v, want Unknown", got)
	}
	if got := CategoryOf(fmt.Errorf("x: %w", RoomDir)); got != CategoryStorage {
		t.Errorf("CategoryOf(bare kind) = %v, want storage", got)
	}
}

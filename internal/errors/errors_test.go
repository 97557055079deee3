package errors

import (
	"fmt"
	"testing"
)

func TestBuildDefaultsToGenericCategory(t *testing.T) {
	t.Parallel()

	ee := New(fmt.Errorf("boom")).Build()

	if ee.Err.Error() != "boom" {
		t.Errorf("expected message %q, got %q", "boom", ee.Err.Error())
	}
	if ee.Category != CategoryGeneric {
		t.Errorf("expected category %q, got %q", CategoryGeneric, ee.Category)
	}
}

func TestBuildHonorsExplicitComponentAndCategory(t *testing.T) {
	t.Parallel()

	ee := Newf("phrase %s missing singer", "p1").
		Component("pipeline").
		Category(CategoryValidation).
		Context("phraseKey", "p1").
		Build()

	if ee.GetComponent() != "pipeline" {
		t.Errorf("expected component %q, got %q", "pipeline", ee.GetComponent())
	}
	if ee.GetCategory() != string(CategoryValidation) {
		t.Errorf("expected category %q, got %q", CategoryValidation, ee.GetCategory())
	}
	if ee.GetContext()["phraseKey"] != "p1" {
		t.Errorf("expected context to round-trip, got %v", ee.GetContext())
	}
}

func TestIsCategory(t *testing.T) {
	t.Parallel()

	err := Newf("queue full").Category(CategoryLimit).Build()
	if !IsCategory(err, CategoryLimit) {
		t.Errorf("expected IsCategory to report true for CategoryLimit")
	}
	if IsCategory(err, CategoryValidation) {
		t.Errorf("expected IsCategory to report false for unrelated category")
	}
}

func TestContextCopyIsDefensive(t *testing.T) {
	t.Parallel()

	ee := Newf("x").Context("k", "v").Build()
	ctx := ee.GetContext()
	ctx["k"] = "mutated"

	if ee.GetContext()["k"] != "v" {
		t.Errorf("expected internal context to be unaffected by caller mutation")
	}
}

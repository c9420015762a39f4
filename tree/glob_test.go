package tree_test

import (
	"sort"
	"testing"

	"github.com/cloudmega/megasdk/tree"
)

func TestGlobSingleSegmentWildcard(t *testing.T) {
	tr, root := buildSampleTree(t)

	matches, err := tr.Glob(root, "*")
	if err != nil {
		t.Fatal(err)
	}
	names := namesOf(matches)
	sort.Strings(names)
	want := []string{"A", "A"}
	if len(names) != len(want) {
		t.Fatalf("Glob(*) = %v, want 2 matches under ROOT", names)
	}
}

func TestGlobQuestionMark(t *testing.T) {
	tr, root := buildSampleTree(t)
	a, _ := tr.ChildByName(root, "A")

	matches, err := tr.Glob(a, "f?.txt")
	if err != nil {
		t.Fatal(err)
	}
	names := namesOf(matches)
	if len(names) != 1 || names[0] != "f2.txt" {
		t.Errorf("Glob(f?.txt) = %v, want [f2.txt]", names)
	}
}

func TestGlobRecursiveDoubleStar(t *testing.T) {
	tr, root := buildSampleTree(t)

	matches, err := tr.Glob(root, "**/f1.txt")
	if err != nil {
		t.Fatal(err)
	}
	names := namesOf(matches)
	if len(names) != 1 || names[0] != "f1.txt" {
		t.Errorf("Glob(**/f1.txt) = %v, want [f1.txt]", names)
	}
}

func namesOf(nodes []*tree.Node) []string {
	names := make([]string, len(nodes))
	for i, n := range nodes {
		names[i] = n.Name()
	}
	return names
}

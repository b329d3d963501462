package lpc_test

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"deckcore/internal/lpc"
	"deckcore/pkg/domain"
)

const plateURI = "opentrons/corning_96_wellplate_360ul_flat/2"

var (
	slotD1 = domain.Sequence(domain.LocationComponent{Kind: domain.LocationOnAddressableArea, AddressableAreaName: "D1"})
	onTemp = domain.Sequence(
		domain.LocationComponent{Kind: domain.LocationOnModule, ModuleModel: "temperatureModuleV2"},
		domain.LocationComponent{Kind: domain.LocationOnAddressableArea, AddressableAreaName: "C1"},
	)
	onTempReversed = domain.Sequence(onTemp.Components[1], onTemp.Components[0])
)

func offset(id string, minute int, uri string, loc domain.LocationSequence, x float64) domain.LabwareOffset {
	return domain.LabwareOffset{
		ID:               id,
		CreatedAt:        time.Date(2026, 1, 2, 3, minute, 0, 0, time.UTC),
		DefinitionURI:    uri,
		LocationSequence: loc,
		Vector:           domain.Vector{X: x},
	}
}

func ids(offsets []domain.LabwareOffset) []string {
	out := make([]string, 0, len(offsets))
	for _, o := range offsets {
		out = append(out, o.ID)
	}
	return out
}

func TestSortUniqueOffsetsKeepsNewestPerTarget(t *testing.T) {
	input := []domain.LabwareOffset{
		offset("old-d1", 1, plateURI, slotD1, 1),
		offset("new-d1", 5, plateURI, slotD1, 2),
		offset("temp", 3, plateURI, onTemp, 3),
		offset("temp-reversed", 2, plateURI, onTempReversed, 4),
		offset("any", 4, plateURI, domain.AnyLocation, 5),
		offset("other-uri", 6, "opentrons/nest_96_wellplate_100ul_pcr_full_skirt/2", slotD1, 6),
	}
	before := make([]domain.LabwareOffset, len(input))
	copy(before, input)

	got := lpc.SortUniqueOffsets(input)
	want := []string{"other-uri", "new-d1", "any", "temp", "temp-reversed"}
	if diff := cmp.Diff(want, ids(got)); diff != "" {
		t.Fatalf("sort-unique mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(before, input); diff != "" {
		t.Fatalf("input modified (-before +after):\n%s", diff)
	}
	if again := lpc.SortUniqueOffsets(got); !cmp.Equal(got, again) {
		t.Fatalf("sort-unique is not idempotent: %v vs %v", ids(got), ids(again))
	}
	for i := 1; i < len(got); i++ {
		if got[i].CreatedAt.After(got[i-1].CreatedAt) {
			t.Fatalf("output not sorted newest first at %d", i)
		}
	}
}

func TestSortUniqueOffsetsStableOnTies(t *testing.T) {
	input := []domain.LabwareOffset{
		offset("first", 1, plateURI, slotD1, 1),
		offset("second", 1, plateURI, slotD1, 2),
		offset("third", 1, plateURI, onTemp, 3),
	}
	got := lpc.SortUniqueOffsets(input)
	if diff := cmp.Diff([]string{"first", "third"}, ids(got)); diff != "" {
		t.Fatalf("tie handling mismatch (-want +got):\n%s", diff)
	}
	if len(lpc.SortUniqueOffsets(nil)) != 0 {
		t.Fatalf("expected empty output for empty input")
	}
}

func TestSortUniqueOffsetsDoesNotAlias(t *testing.T) {
	input := []domain.LabwareOffset{offset("a", 1, plateURI, onTemp, 1)}
	got := lpc.SortUniqueOffsets(input)
	got[0].LocationSequence.Components[0].ModuleModel = "changed"
	if input[0].LocationSequence.Components[0].ModuleModel != "temperatureModuleV2" {
		t.Fatalf("output shares location components with input")
	}
}

func TestFilterByDefinition(t *testing.T) {
	input := []domain.LabwareOffset{
		offset("a", 1, plateURI, slotD1, 1),
		offset("b", 2, "other", slotD1, 1),
	}
	if diff := cmp.Diff([]string{"a"}, ids(lpc.FilterByDefinition(input, plateURI))); diff != "" {
		t.Fatalf("filter mismatch (-want +got):\n%s", diff)
	}
	all := lpc.FilterByDefinition(input, "")
	if len(all) != 2 {
		t.Fatalf("empty uri should keep all offsets")
	}
	all[0].ID = "changed"
	all[0].LocationSequence.Components[0].AddressableAreaName = "A3"
	if input[0].ID != "a" || input[0].LocationSequence.Components[0].AddressableAreaName != "D1" {
		t.Fatalf("filtered offsets share storage with the input: %+v", input[0])
	}
}

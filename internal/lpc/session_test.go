package lpc_test

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"deckcore/internal/lpc"
	"deckcore/pkg/domain"
)

func newTestSession(t *testing.T, existing []domain.LabwareOffset, opts ...lpc.SessionOption) *lpc.Session {
	t.Helper()
	n := 0
	opts = append([]lpc.SessionOption{
		lpc.WithClock(func() time.Time { return time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC) }),
		lpc.WithIDGenerator(func() string { n++; return fmt.Sprintf("offset-%d", n) }),
	}, opts...)
	s, err := lpc.NewSession(
		[]domain.PipetteEntity{pipette("left", "p300_single_gen2"), pipette("right", "p300_multi_gen2")},
		[]lpc.SessionLabware{{DefinitionURI: plateURI, DisplayName: "Plate", Locations: []domain.LocationSequence{slotD1, onTemp}}},
		existing,
		opts...,
	)
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	return s
}

func TestClearAllWorkingOffsetsOnlyTouchesWorkingOffsets(t *testing.T) {
	existing := offset("persisted", 1, plateURI, slotD1, 1.5)
	pos := domain.Vector{X: 1, Y: 2, Z: 3}
	input := lpc.LabwareMap{
		plateURI: {
			DefinitionURI: plateURI,
			DisplayName:   "Plate",
			DefaultOffset: lpc.OffsetDetails{LocationSequence: domain.AnyLocation, WorkingOffset: &lpc.WorkingOffset{InitialPosition: &pos}},
			LocationSpecificOffsets: []lpc.OffsetDetails{
				{LocationSequence: slotD1, ExistingOffset: &existing, WorkingOffset: &lpc.WorkingOffset{InitialPosition: &pos, FinalPosition: &pos}},
				{LocationSequence: onTemp},
			},
		},
	}
	before := input.Clone()

	got := lpc.ClearAllWorkingOffsets(input)
	if diff := cmp.Diff(before, input); diff != "" {
		t.Fatalf("input modified (-before +after):\n%s", diff)
	}
	want := before.Clone()
	details := want[plateURI]
	details.DefaultOffset.WorkingOffset = nil
	details.LocationSpecificOffsets[0].WorkingOffset = nil
	want[plateURI] = details
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("cleared map mismatch (-want +got):\n%s", diff)
	}
}

func TestSessionSeedsNewestExistingOffsets(t *testing.T) {
	s := newTestSession(t, []domain.LabwareOffset{
		offset("stale", 1, plateURI, slotD1, 1),
		offset("fresh", 2, plateURI, slotD1, 2),
		offset("default", 3, plateURI, domain.AnyLocation, 3),
	})
	if id, ok := s.ActivePipette(); !ok || id != "right" {
		t.Fatalf("expected multi-channel pipette active, got %q %v", id, ok)
	}
	lw := s.Labware()[plateURI]
	if lw.DefaultOffset.ExistingOffset == nil || lw.DefaultOffset.ExistingOffset.ID != "default" {
		t.Fatalf("default offset not seeded: %+v", lw.DefaultOffset)
	}
	if len(lw.LocationSpecificOffsets) != 2 {
		t.Fatalf("expected two tracked locations, got %d", len(lw.LocationSpecificOffsets))
	}
	if got := lw.LocationSpecificOffsets[0].ExistingOffset; got == nil || got.ID != "fresh" {
		t.Fatalf("expected newest offset for D1, got %+v", got)
	}
	if lw.LocationSpecificOffsets[1].ExistingOffset != nil {
		t.Fatalf("expected no offset on the temperature module location")
	}
}

func TestSessionPendingOffsets(t *testing.T) {
	s := newTestSession(t, []domain.LabwareOffset{offset("fresh", 2, plateURI, slotD1, 0.5)})

	if err := s.SetFinalPosition(plateURI, slotD1, domain.Vector{}); !errors.Is(err, lpc.ErrNoInitialPosition) {
		t.Fatalf("expected ErrNoInitialPosition, got %v", err)
	}
	if err := s.SetInitialPosition(plateURI, slotD1, domain.Vector{X: 10, Y: 10, Z: 10}); err != nil {
		t.Fatalf("set initial: %v", err)
	}
	if err := s.SetFinalPosition(plateURI, slotD1, domain.Vector{X: 11, Y: 9, Z: 10.25}); err != nil {
		t.Fatalf("set final: %v", err)
	}
	if err := s.SetInitialPosition(plateURI, domain.AnyLocation, domain.Vector{X: 1}); err != nil {
		t.Fatalf("set default initial: %v", err)
	}
	if err := s.SetFinalPosition(plateURI, domain.AnyLocation, domain.Vector{X: 1, Z: -0.5}); err != nil {
		t.Fatalf("set default final: %v", err)
	}
	if err := s.SetInitialPosition(plateURI, onTemp, domain.Vector{}); err != nil {
		t.Fatalf("set temp initial: %v", err)
	}

	created := time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)
	want := []domain.LabwareOffset{
		{ID: "offset-1", CreatedAt: created, DefinitionURI: plateURI, LocationSequence: domain.AnyLocation, Vector: domain.Vector{Z: -0.5}},
		{ID: "offset-2", CreatedAt: created, DefinitionURI: plateURI, LocationSequence: slotD1, Vector: domain.Vector{X: 1.5, Y: -1, Z: 0.25}},
	}
	if diff := cmp.Diff(want, s.PendingOffsets()); diff != "" {
		t.Fatalf("pending offsets mismatch (-want +got):\n%s", diff)
	}
}

func TestSessionUnknownLocation(t *testing.T) {
	s := newTestSession(t, nil)
	var notFound *lpc.LocationNotFoundError
	if err := s.SetInitialPosition("missing/uri/1", domain.AnyLocation, domain.Vector{}); !errors.As(err, &notFound) {
		t.Fatalf("expected LocationNotFoundError for unknown labware, got %v", err)
	}
	if err := s.SetInitialPosition(plateURI, onTempReversed, domain.Vector{}); !errors.As(err, &notFound) {
		t.Fatalf("expected LocationNotFoundError for reversed sequence, got %v", err)
	}
}

func TestSessionResetClearsWorkingOffsets(t *testing.T) {
	s := newTestSession(t, nil)
	if err := s.Proceed(); err != nil {
		t.Fatalf("proceed: %v", err)
	}
	if err := s.GoTo(lpc.StepHandleLabware); err != nil {
		t.Fatalf("go to: %v", err)
	}
	if err := s.SetInitialPosition(plateURI, slotD1, domain.Vector{X: 1}); err != nil {
		t.Fatalf("set initial: %v", err)
	}
	if wo, err := s.WorkingOffset(plateURI, slotD1); err != nil || wo == nil {
		t.Fatalf("expected working offset, got %v %v", wo, err)
	}

	s.Reset()
	if s.StepInfo().CurrentStepIndex != 0 {
		t.Fatalf("expected step index reset")
	}
	if wo, err := s.WorkingOffset(plateURI, slotD1); err != nil || wo != nil {
		t.Fatalf("expected working offset cleared, got %v %v", wo, err)
	}
	if len(s.PendingOffsets()) != 0 {
		t.Fatalf("expected no pending offsets after reset")
	}
}

func TestSessionForwardsSequencerOptions(t *testing.T) {
	s := newTestSession(t, nil, lpc.WithSequencerOptions(lpc.WithUnknownStepPolicy(lpc.UnknownStepReject)))
	var notFound *lpc.StepNotFoundError
	if err := s.GoTo("NOPE"); !errors.As(err, &notFound) {
		t.Fatalf("expected StepNotFoundError, got %v", err)
	}
}

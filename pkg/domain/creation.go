package domain

import (
	"fmt"
	"strings"
)

// ErrorType is the closed set of command creation error identifiers.
type ErrorType string

// Command creation error types. The UI keys its messaging on these values.
const (
	ErrPipetteDoesNotExist   ErrorType = "PIPETTE_DOES_NOT_EXIST"
	ErrLabwareDoesNotExist   ErrorType = "LABWARE_DOES_NOT_EXIST"
	ErrModuleDoesNotExist    ErrorType = "MODULE_DOES_NOT_EXIST"
	ErrNoTipOnPipette        ErrorType = "NO_TIP_ON_PIPETTE"
	ErrTipAlreadyAttached    ErrorType = "TIP_ALREADY_ATTACHED"
	ErrInsufficientTips      ErrorType = "INSUFFICIENT_TIPS"
	ErrPipetteVolumeExceeded ErrorType = "PIPETTE_VOLUME_EXCEEDED"
	ErrTipVolumeExceeded     ErrorType = "TIP_VOLUME_EXCEEDED"
	ErrInsufficientVolume    ErrorType = "INSUFFICIENT_VOLUME"
	ErrLabwareOffDeck        ErrorType = "LABWARE_OFF_DECK"
	ErrWellDoesNotExist      ErrorType = "WELL_DOES_NOT_EXIST"
	ErrMismatchedModuleType  ErrorType = "MISMATCHED_MODULE_TYPE"
	ErrHeaterShakerLatchOpen ErrorType = "HEATER_SHAKER_LATCH_OPEN"
	ErrThermocyclerLidClosed ErrorType = "THERMOCYCLER_LID_CLOSED"
	ErrInvalidSlot           ErrorType = "INVALID_SLOT"
)

// WarningType identifies a non-blocking command creation warning.
type WarningType string

// Command creation warning types.
const (
	WarnAspirateMoreThanWellContents WarningType = "ASPIRATE_MORE_THAN_WELL_CONTENTS"
	WarnAspirateFromPristineWell     WarningType = "ASPIRATE_FROM_PRISTINE_WELL"
)

// CommandCreationError reports a physically inconsistent request.
type CommandCreationError struct {
	Type    ErrorType `json:"type"`
	Message string    `json:"message"`
}

func (e CommandCreationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// CommandCreationWarning reports a suspicious but permitted request.
type CommandCreationWarning struct {
	Type    WarningType `json:"type"`
	Message string      `json:"message"`
}

// CommandCreationResult is either a successful command list or a set of
// errors, never both. Warnings may accompany either outcome.
type CommandCreationResult struct {
	Commands []Command
	Errors   []CommandCreationError
	Warnings []CommandCreationWarning
}

// Success builds a result holding commands.
func Success(commands ...Command) CommandCreationResult {
	return CommandCreationResult{Commands: commands}
}

// Failure builds a result holding errors.
func Failure(errs ...CommandCreationError) CommandCreationResult {
	return CommandCreationResult{Errors: errs}
}

// Failed reports whether the result carries errors.
func (r CommandCreationResult) Failed() bool {
	return len(r.Errors) > 0
}

// ErrorSummary joins error messages for logging.
func (r CommandCreationResult) ErrorSummary() string {
	parts := make([]string, 0, len(r.Errors))
	for _, e := range r.Errors {
		parts = append(parts, e.Error())
	}
	return strings.Join(parts, "; ")
}

// PipetteDoesNotExist reports an unknown pipette id.
func PipetteDoesNotExist(pipetteID string) CommandCreationError {
	return CommandCreationError{Type: ErrPipetteDoesNotExist, Message: fmt.Sprintf("pipette %q does not exist", pipetteID)}
}

// LabwareDoesNotExist reports an unknown labware id.
func LabwareDoesNotExist(labwareID string) CommandCreationError {
	return CommandCreationError{Type: ErrLabwareDoesNotExist, Message: fmt.Sprintf("labware %q does not exist", labwareID)}
}

// ModuleDoesNotExist reports an unknown module id.
func ModuleDoesNotExist(moduleID string) CommandCreationError {
	return CommandCreationError{Type: ErrModuleDoesNotExist, Message: fmt.Sprintf("module %q does not exist", moduleID)}
}

// NoTipOnPipette reports a liquid handling command without an attached tip.
func NoTipOnPipette(pipetteID, action string) CommandCreationError {
	return CommandCreationError{Type: ErrNoTipOnPipette, Message: fmt.Sprintf("attempted to %s with no tip on pipette %q", action, pipetteID)}
}

// TipAlreadyAttached reports a pick up with a tip already attached.
func TipAlreadyAttached(pipetteID string) CommandCreationError {
	return CommandCreationError{Type: ErrTipAlreadyAttached, Message: fmt.Sprintf("pipette %q already has a tip", pipetteID)}
}

// InsufficientTips reports exhausted tipracks.
func InsufficientTips() CommandCreationError {
	return CommandCreationError{Type: ErrInsufficientTips, Message: "not enough tips to complete action"}
}

// PipetteVolumeExceeded reports a volume outside the pipette range.
func PipetteVolumeExceeded(volume, max float64) CommandCreationError {
	return CommandCreationError{Type: ErrPipetteVolumeExceeded, Message: fmt.Sprintf("volume %g uL exceeds pipette maximum %g uL", volume, max)}
}

// TipVolumeExceeded reports a volume larger than the tip capacity.
func TipVolumeExceeded(volume, max float64) CommandCreationError {
	return CommandCreationError{Type: ErrTipVolumeExceeded, Message: fmt.Sprintf("volume %g uL exceeds tip capacity %g uL", volume, max)}
}

// InsufficientVolume reports a dispense larger than the tip contents.
func InsufficientVolume(requested, available float64) CommandCreationError {
	return CommandCreationError{Type: ErrInsufficientVolume, Message: fmt.Sprintf("cannot dispense %g uL, tip holds %g uL", requested, available)}
}

// LabwareOffDeck reports access to labware that is off the deck.
func LabwareOffDeck(labwareID string) CommandCreationError {
	return CommandCreationError{Type: ErrLabwareOffDeck, Message: fmt.Sprintf("labware %q is off deck", labwareID)}
}

// WellDoesNotExist reports an unknown well name.
func WellDoesNotExist(labwareID, well string) CommandCreationError {
	return CommandCreationError{Type: ErrWellDoesNotExist, Message: fmt.Sprintf("well %s does not exist on labware %q", well, labwareID)}
}

// MismatchedModuleType reports a command sent to the wrong module family.
func MismatchedModuleType(moduleID string, want ModuleType) CommandCreationError {
	return CommandCreationError{Type: ErrMismatchedModuleType, Message: fmt.Sprintf("module %q is not a %s", moduleID, want)}
}

// HeaterShakerLatchOpen reports shaking with an open latch.
func HeaterShakerLatchOpen(moduleID string) CommandCreationError {
	return CommandCreationError{Type: ErrHeaterShakerLatchOpen, Message: fmt.Sprintf("heater-shaker %q latch is open", moduleID)}
}

// ThermocyclerLidClosed reports pipette access to a closed thermocycler.
func ThermocyclerLidClosed(moduleID string) CommandCreationError {
	return CommandCreationError{Type: ErrThermocyclerLidClosed, Message: fmt.Sprintf("thermocycler %q lid is closed", moduleID)}
}

// InvalidSlot reports a move to an occupied or unknown location.
func InvalidSlot(location string) CommandCreationError {
	return CommandCreationError{Type: ErrInvalidSlot, Message: fmt.Sprintf("location %q is not available", location)}
}

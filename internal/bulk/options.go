package bulk

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// Mode selects how a load resolves rows against existing records.
type Mode string

const (
	ModeInsert Mode = "insert"
	ModeUpsert Mode = "upsert"
)

// ValidationMode selects how strictly the server validates uploaded rows.
type ValidationMode string

const (
	ValidationNone ValidationMode = "none"
	ValidationAuto ValidationMode = "auto"
	ValidationFull ValidationMode = "full"
)

// Post-operation hooks the server can run after a bulk mutation. This is the
// complete set; any other key in a hook map is rejected before submission.
const (
	HookFixDenormalized    = "fix_denormalized"
	HookRebuildSearchIndex = "rebuild_search_index"
	HookFixCounters        = "fix_counters"
)

var knownHooks = map[string]bool{
	HookFixDenormalized:    true,
	HookRebuildSearchIndex: true,
	HookFixCounters:        true,
}

func validateHooks(hooks map[string]bool) error {
	for k := range hooks {
		if !knownHooks[k] {
			return &InvalidInputError{Reason: fmt.Sprintf("unknown post hook %q", k)}
		}
	}
	return nil
}

// LoadOptions configures a bulk load submission. The zero value means:
// insert mode, auto validation, changelogs on, server-default event dispatch,
// no branch, committed run.
type LoadOptions struct {
	Mode               Mode
	ConflictFields     []string
	ConflictConstraint string
	ValidationMode     ValidationMode
	PostHooks          map[string]bool
	CreateChangelogs   *bool
	DispatchEvents     *bool
	Branch             string
	DryRun             bool
}

func (o LoadOptions) formValues(model string) (url.Values, error) {
	mode := o.Mode
	if mode == "" {
		mode = ModeInsert
	}
	if mode != ModeInsert && mode != ModeUpsert {
		return nil, &InvalidInputError{Reason: fmt.Sprintf("unknown mode %q", mode)}
	}
	vm := o.ValidationMode
	if vm == "" {
		vm = ValidationAuto
	}
	if vm != ValidationNone && vm != ValidationAuto && vm != ValidationFull {
		return nil, &InvalidInputError{Reason: fmt.Sprintf("unknown validation mode %q", vm)}
	}
	if err := validateHooks(o.PostHooks); err != nil {
		return nil, err
	}

	v := url.Values{}
	v.Set("model", model)
	v.Set("mode", string(mode))
	v.Set("validation_mode", string(vm))
	v.Set("create_changelogs", strconv.FormatBool(boolOrDefault(o.CreateChangelogs, true)))
	if len(o.ConflictFields) > 0 {
		v.Set("conflict_fields", strings.Join(o.ConflictFields, ","))
	}
	if o.ConflictConstraint != "" {
		v.Set("conflict_constraint", o.ConflictConstraint)
	}
	if len(o.PostHooks) > 0 {
		raw, err := json.Marshal(o.PostHooks)
		if err != nil {
			return nil, fmt.Errorf("encode post hooks: %w", err)
		}
		v.Set("post_hooks", string(raw))
	}
	if o.DispatchEvents != nil {
		v.Set("dispatch_events", strconv.FormatBool(*o.DispatchEvents))
	}
	if o.Branch != "" {
		v.Set("branch", o.Branch)
	}
	if o.DryRun {
		v.Set("dry_run", "true")
	}
	return v, nil
}

// DeleteOptions configures a bulk delete submission. The zero value deletes
// by primary key with nullable FK cascade and changelogs enabled.
type DeleteOptions struct {
	KeyFields          []string
	CascadeNullableFKs *bool
	CreateChangelogs   *bool
	DispatchEvents     *bool
	Branch             string
	DryRun             bool
}

func (o DeleteOptions) formValues(model string) (url.Values, error) {
	v := url.Values{}
	v.Set("model", model)
	v.Set("cascade_nullable_fks", strconv.FormatBool(boolOrDefault(o.CascadeNullableFKs, true)))
	v.Set("create_changelogs", strconv.FormatBool(boolOrDefault(o.CreateChangelogs, true)))
	if len(o.KeyFields) > 0 {
		v.Set("key_fields", strings.Join(o.KeyFields, ","))
	}
	if o.DispatchEvents != nil {
		v.Set("dispatch_events", strconv.FormatBool(*o.DispatchEvents))
	}
	if o.Branch != "" {
		v.Set("branch", o.Branch)
	}
	if o.DryRun {
		v.Set("dry_run", "true")
	}
	return v, nil
}

func boolOrDefault(p *bool, def bool) bool {
	if p == nil {
		return def
	}
	return *p
}

// Bool returns a pointer to b, for the optional toggles above.
func Bool(b bool) *bool {
	return &b
}

package forms

import (
	"fmt"
	"net/url"
	"slices"
	"strconv"
	"strings"
)

const (
	FieldAccountsToDelete = "accounts_to_delete"
	FieldUpdateSelect     = "account_update_select"
)

type deleteSelectionForm struct {
	IDs []string `form:"accounts_to_delete" validate:"dive,integer"`
}

type updateSelectionForm struct {
	ID string `form:"account_update_select" validate:"required,integer"`
}

// DeleteSelection validates a bulk delete submission. Zero ids is a valid
// selection; every submitted id must be one of choices.
func (v *Validator) DeleteSelection(submitted url.Values, choices []int) ([]int, Errors) {
	form := deleteSelectionForm{}
	for _, raw := range submitted[FieldAccountsToDelete] {
		if raw = strings.TrimSpace(raw); raw != "" {
			form.IDs = append(form.IDs, raw)
		}
	}

	errs := Errors{}
	if v.check(form).Any() {
		for _, raw := range form.IDs {
			if _, err := strconv.Atoi(raw); err != nil {
				errs.Add(FieldAccountsToDelete, invalidChoice(raw))
			}
		}
		return nil, errs
	}

	ids := make([]int, 0, len(form.IDs))
	for _, raw := range form.IDs {
		id, _ := strconv.Atoi(raw)
		if !slices.Contains(choices, id) {
			errs.Add(FieldAccountsToDelete, invalidChoice(raw))
			continue
		}
		if !slices.Contains(ids, id) {
			ids = append(ids, id)
		}
	}
	if errs.Any() {
		return nil, errs
	}
	return ids, Errors{}
}

// UpdateSelection validates the choice of exactly one account to update.
func (v *Validator) UpdateSelection(submitted url.Values, choices []int) (int, Errors) {
	form := updateSelectionForm{ID: strings.TrimSpace(submitted.Get(FieldUpdateSelect))}
	if errs := v.check(form); errs.Any() {
		return 0, errs
	}

	id, _ := strconv.Atoi(form.ID)
	if !slices.Contains(choices, id) {
		errs := Errors{}
		errs.Add(FieldUpdateSelect, invalidChoice(form.ID))
		return 0, errs
	}
	return id, Errors{}
}

func invalidChoice(value string) string {
	return fmt.Sprintf("Select a valid choice. %s is not one of the available choices.", value)
}

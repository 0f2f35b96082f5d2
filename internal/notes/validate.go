package notes

import (
	"fmt"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/folio/internal/apperr"
	"github.com/starford/folio/internal/models"
)

const maxTitleLen = 500

var errNotNullable = validation.NewError("validation_not_nullable", "must not be null")

func validateNewNote(in models.NewNote) error {
	err := validation.Errors{
		"title":     validation.Validate(in.Title, validation.Length(0, maxTitleLen)),
		"folder_id": validation.Validate(in.FolderID, validation.NilOrNotEmpty),
	}.Filter()
	if err != nil {
		return fmt.Errorf("%w: %v", apperr.ErrInvalidInput, err)
	}
	return nil
}

func validatePatch(p models.NotePatch) error {
	if p.Empty() {
		return fmt.Errorf("%w: nothing to update", apperr.ErrInvalidInput)
	}
	errs := validation.Errors{}
	if p.Title.Null {
		errs["title"] = errNotNullable
	}
	if p.IsStarred.Null {
		errs["is_starred"] = errNotNullable
	}
	if p.Title.Set && !p.Title.Null {
		errs["title"] = validation.Validate(p.Title.Value, validation.Length(0, maxTitleLen))
	}
	if p.FolderID.Set && p.FolderID.Value != nil && strings.TrimSpace(*p.FolderID.Value) == "" {
		errs["folder_id"] = validation.NewError("validation_folder_id", "must be null or a folder id")
	}
	if err := errs.Filter(); err != nil {
		return fmt.Errorf("%w: %v", apperr.ErrInvalidInput, err)
	}
	return nil
}

func validateFolderName(name string) error {
	err := validation.Validate(strings.TrimSpace(name), validation.Required, validation.Length(1, 255))
	if err != nil {
		return fmt.Errorf("%w: name: %v", apperr.ErrInvalidInput, err)
	}
	return nil
}

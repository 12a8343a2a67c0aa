package rsrc

import "github.com/pkg/errors"

// Error kinds reported by the engine. Callers test them with errors.Is;
// every returned error wraps exactly one of these.
var (
	// ErrMalformedResourceDirectory reports a structurally corrupt tree:
	// out-of-bounds offsets, directory cycles or duplicate selectors.
	ErrMalformedResourceDirectory = errors.New("malformed resource directory")

	// ErrMalformedVersionInfo reports a truncated or misaligned
	// VS_VERSIONINFO block.
	ErrMalformedVersionInfo = errors.New("malformed version info")

	// ErrMalformedDialogTemplate reports a truncated dialog template.
	ErrMalformedDialogTemplate = errors.New("malformed dialog template")

	// ErrMalformedStringTable reports a truncated RT_STRING block.
	ErrMalformedStringTable = errors.New("malformed string table")

	// ErrMalformedIconFile reports a truncated or invalid .ico file.
	ErrMalformedIconFile = errors.New("malformed icon file")

	// ErrNotFound is returned by accessors when the resource type is absent.
	ErrNotFound = errors.New("resource not found")

	// ErrLogic reports a mutation request that cannot be satisfied. The tree
	// is left untouched.
	ErrLogic = errors.New("invalid resource operation")

	// ErrStaleHandle is returned when a handle refers to a removed node.
	ErrStaleHandle = errors.New("stale resource handle")
)

// ErrDanglingIconReference is returned when a group icon references an
// RT_ICON id that has no leaf. It is a flavor of a malformed directory.
var ErrDanglingIconReference = errors.WithMessage(ErrMalformedResourceDirectory, "dangling icon reference")

func malformed(format string, args ...any) error {
	return errors.Wrapf(ErrMalformedResourceDirectory, format, args...)
}

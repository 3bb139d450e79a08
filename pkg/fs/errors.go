package fs

// Stable error codes surfaced by filesystem operations. The error kind
// (validation, not-found, conflict, type mismatch) is carried by the
// errtypes.Error wrapping each code.
const (
	CodeInvalidPath       = "INVALID_PATH"
	CodeInvalidRoot       = "INVALID_ROOT"
	CodePathNotFound      = "PATH_NOT_FOUND"
	CodeNodeNotFound      = "NODE_NOT_FOUND"
	CodeIndexOutOfBounds  = "INDEX_OUT_OF_BOUNDS"
	CodeNotADirectory     = "NOT_A_DIRECTORY"
	CodeNotAFile          = "NOT_A_FILE"
	CodeExistsAsFile      = "EXISTS_AS_FILE"
	CodeTargetExists      = "TARGET_EXISTS"
	CodeMoveIntoSelf      = "MOVE_INTO_SELF"
	CodeCannotRemoveRoot  = "CANNOT_REMOVE_ROOT"
	CodeCannotMoveRoot    = "CANNOT_MOVE_ROOT"
	CodeFileTooLarge      = "FILE_TOO_LARGE"
	CodeEmptyRewrite      = "EMPTY_REWRITE"
	CodeTooManyEntries    = "TOO_MANY_ENTRIES"
	CodeLinkNotAuthorized = "LINK_NOT_AUTHORIZED"
)

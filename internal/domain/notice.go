package domain

import "fmt"

// NoticeLevel classifies a user-visible notification.
type NoticeLevel string

const (
	NoticeSuccess NoticeLevel = "success"
	NoticeWarning NoticeLevel = "warning"
	NoticeError   NoticeLevel = "error"
)

// Notice is a transient, user-visible notification raised by intake and export.
type Notice struct {
	Level   NoticeLevel `json:"level"`
	Message string      `json:"message"`
}

// User-facing notice texts.
const (
	MsgImagesOnly      = "Please upload image files only"
	MsgNoImagesAdded   = "No images could be added"
	MsgExportSucceeded = "Images downloaded successfully"
	MsgExportFailed    = "Error downloading images"
)

// IntakeNotice reports how many images a drop added.
func IntakeNotice(accepted int) Notice {
	if accepted == 0 {
		return Notice{Level: NoticeError, Message: MsgImagesOnly}
	}
	return Notice{Level: NoticeSuccess, Message: fmt.Sprintf("%d images uploaded", accepted)}
}

// ExportNotice reports the outcome of a whole export batch.
func ExportNotice(failures int) Notice {
	if failures > 0 {
		return Notice{Level: NoticeError, Message: MsgExportFailed}
	}
	return Notice{Level: NoticeSuccess, Message: MsgExportSucceeded}
}

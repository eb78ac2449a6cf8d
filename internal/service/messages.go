package service

import (
	"errors"

	"github.com/noah-isme/volunteer-hub-web/pkg/activityapi"
)

// uiMessages holds the user-facing notification texts for one locale.
type uiMessages struct {
	UploadFailed         string
	UnknownUploadError   string
	DeletingFile         string
	FileDeleted          string
	FileDeleteFailed     string
	FileRemoved          string
	CleaningTemps        string
	TempsCleaned         string
	TempsCleanupFailed   string
	DeletingActivity     string
	ActivityDeleted      string
	ActivityDeleteFailed string
	DeleteInProgress     string
	Refreshing           string
	Refreshed            string
	ListFailed           string
	Updating             string
	Updated              string
	Creating             string
	Created              string
	SaveFailed           string
	FormInvalid          string
	MissingActivityID    string
}

var catalog = map[string]uiMessages{
	LocaleVietnamese: {
		UploadFailed:         "Upload thất bại: %s",
		UnknownUploadError:   "Lỗi upload không xác định",
		DeletingFile:         "Đang xóa file...",
		FileDeleted:          "Đã xóa file thành công!",
		FileDeleteFailed:     "Không thể xóa file khỏi server, nhưng đã loại bỏ khỏi form.",
		FileRemoved:          "Đã loại bỏ file khỏi danh sách!",
		CleaningTemps:        "Đang dọn dẹp các file tạm thời...",
		TempsCleaned:         "Đã dọn dẹp các file tạm thời!",
		TempsCleanupFailed:   "Một số file tạm thời có thể chưa được dọn dẹp.",
		DeletingActivity:     "Đang xóa hoạt động...",
		ActivityDeleted:      "Xóa hoạt động thành công!",
		ActivityDeleteFailed: "Không thể xóa hoạt động. Vui lòng thử lại.",
		DeleteInProgress:     "Hoạt động này đang được xóa.",
		Refreshing:           "Đang làm mới danh sách...",
		Refreshed:            "Đã làm mới danh sách thành công!",
		ListFailed:           "Không thể tải danh sách hoạt động. Vui lòng thử lại sau.",
		Updating:             "Đang cập nhật hoạt động...",
		Updated:              "Cập nhật hoạt động thành công!",
		Creating:             "Đang tạo hoạt động mới...",
		Created:              "Tạo hoạt động thành công!",
		SaveFailed:           "Không thể lưu hoạt động. Vui lòng thử lại.",
		FormInvalid:          "Vui lòng kiểm tra lại thông tin hoạt động.",
		MissingActivityID:    "Hoạt động được chọn không có ID hợp lệ.",
	},
	LocaleEnglish: {
		UploadFailed:         "Upload failed: %s",
		UnknownUploadError:   "Unknown upload error",
		DeletingFile:         "Deleting file...",
		FileDeleted:          "File deleted.",
		FileDeleteFailed:     "Could not delete the file from the server, but it was removed from the form.",
		FileRemoved:          "File removed from the list.",
		CleaningTemps:        "Cleaning up temporary files...",
		TempsCleaned:         "Temporary files cleaned up.",
		TempsCleanupFailed:   "Some temporary files may not have been cleaned up.",
		DeletingActivity:     "Deleting activity...",
		ActivityDeleted:      "Activity deleted.",
		ActivityDeleteFailed: "Could not delete the activity. Please try again.",
		DeleteInProgress:     "This activity is already being deleted.",
		Refreshing:           "Refreshing list...",
		Refreshed:            "List refreshed.",
		ListFailed:           "Could not load activities. Please try again later.",
		Updating:             "Updating activity...",
		Updated:              "Activity updated.",
		Creating:             "Creating activity...",
		Created:              "Activity created.",
		SaveFailed:           "Could not save the activity. Please try again.",
		FormInvalid:          "Please check the activity details.",
		MissingActivityID:    "The selected activity does not have a valid ID.",
	},
}

func messagesFor(locale string) uiMessages {
	return catalog[NormalizeLocale(locale)]
}

// userMessage extracts the text worth showing to a user from err.
func userMessage(err error, fallback string) string {
	if err == nil {
		return fallback
	}
	var (
		validation *activityapi.ValidationError
		httpErr    *activityapi.HTTPError
	)
	switch {
	case errors.As(err, &validation) && validation.Message != "":
		return validation.Message
	case errors.As(err, &httpErr) && httpErr.Message != "":
		return httpErr.Message
	case err.Error() != "":
		return err.Error()
	default:
		return fallback
	}
}

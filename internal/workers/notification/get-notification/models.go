package getnotification

import "notification-workers/internal/workers/notification/jobs"

type Input struct {
	jobs.CallerVars
	NotificationID string `json:"notificationId"`
}

package event

import (
	"fmt"
	"log"

	"gorm.io/gorm"

	"jobboard-backend/internal/model"
)

// Notifier subscribes to the bus and persists one Notification row per
// interested party. Failures are logged, never propagated: the
// transition already committed by the time the notifier runs.
type Notifier struct {
	DB *gorm.DB
}

// NewNotifier creates a Notifier writing to the given database.
func NewNotifier(db *gorm.DB) *Notifier {
	return &Notifier{DB: db}
}

// Handle routes one event to the matching notification writer.
func (n *Notifier) Handle(e Event) {
	var err error
	switch e.Event {
	case ApplicationReceived:
		err = n.notifyEmployer(e, model.NotificationApplicationReceived,
			"New application received for %q")
	case ApplicationReviewed, ApplicationAccepted, ApplicationRejected:
		err = n.notifyApplicant(e)
	case ApplicationWithdrawn:
		err = n.notifyEmployer(e, model.NotificationApplicationStatus,
			"An application for %q was withdrawn")
	case JobClosed:
		err = n.notifyJobApplicants(e)
	case JobApproved, JobRejected:
		err = n.notifyJobModeration(e)
	}
	if err != nil {
		log.Printf("notifier: failed to handle %s for %s %d: %v", e.Event, e.Entity, e.EntityID, err)
	}
}

func (n *Notifier) loadApplication(id uint) (model.Application, error) {
	var app model.Application
	err := n.DB.Preload("Job").First(&app, id).Error
	return app, err
}

func (n *Notifier) notifyEmployer(e Event, notifType, format string) error {
	app, err := n.loadApplication(e.EntityID)
	if err != nil {
		return err
	}
	return n.DB.Create(&model.Notification{
		UserID:        app.Job.EmployerID,
		Type:          notifType,
		Message:       fmt.Sprintf(format, app.Job.Title),
		JobID:         &app.JobID,
		ApplicationID: &app.ID,
	}).Error
}

func (n *Notifier) notifyApplicant(e Event) error {
	app, err := n.loadApplication(e.EntityID)
	if err != nil {
		return err
	}
	return n.DB.Create(&model.Notification{
		UserID:        app.ApplicantID,
		Type:          model.NotificationApplicationStatus,
		Message:       fmt.Sprintf("Your application for %q is now %s", app.Job.Title, app.Status),
		JobID:         &app.JobID,
		ApplicationID: &app.ID,
	}).Error
}

// notifyJobApplicants tells everyone still waiting on a job that it closed.
func (n *Notifier) notifyJobApplicants(e Event) error {
	var job model.Job
	if err := n.DB.First(&job, e.EntityID).Error; err != nil {
		return err
	}

	var apps []model.Application
	if err := n.DB.Where("job_id = ? AND is_withdrawn = false AND status IN ?",
		job.ID, []string{model.ApplicationStatusPending, model.ApplicationStatusReviewed}).
		Find(&apps).Error; err != nil {
		return err
	}

	notifications := make([]model.Notification, 0, len(apps))
	for i := range apps {
		notifications = append(notifications, model.Notification{
			UserID:        apps[i].ApplicantID,
			Type:          model.NotificationJobClosed,
			Message:       fmt.Sprintf("The job %q is no longer accepting applications", job.Title),
			JobID:         &job.ID,
			ApplicationID: &apps[i].ID,
		})
	}
	if len(notifications) == 0 {
		return nil
	}
	return n.DB.Create(&notifications).Error
}

func (n *Notifier) notifyJobModeration(e Event) error {
	var job model.Job
	if err := n.DB.First(&job, e.EntityID).Error; err != nil {
		return err
	}
	return n.DB.Create(&model.Notification{
		UserID:  job.EmployerID,
		Type:    model.NotificationJobApproval,
		Message: fmt.Sprintf("Your job %q was %s", job.Title, job.ApprovalStatus),
		JobID:   &job.ID,
	}).Error
}

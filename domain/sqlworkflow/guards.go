package sqlworkflow

import (
	"sqlreview/audit"
	"sqlreview/authority"
	"sqlreview/bizerror"
	"sqlreview/session"
	"time"

	"github.com/jinzhu/gorm"
)

// Guard is a precondition of a transition. It never mutates state.
type Guard func(s *session.Session, wf *SqlWorkflow) error

func checkGuards(s *session.Session, wf *SqlWorkflow, guards ...Guard) error {
	for _, guard := range guards {
		if err := guard(s, wf); err != nil {
			return err
		}
	}
	return nil
}

// transitionAllowed requires an edge named op leaving the current status.
func transitionAllowed(op string) Guard {
	return func(s *session.Session, wf *SqlWorkflow) error {
		if _, found := WorkflowStateMachine.FindTransition(op, wf.Status); !found {
			return bizerror.ErrStateInvalid
		}
		return nil
	}
}

// canReview requires the actor to be a member of the audit group currently reviewing the workflow.
func canReview(db *gorm.DB) Guard {
	return func(s *session.Session, wf *SqlWorkflow) error {
		ok, err := audit.CanReviewFunc(db, s, wf.ID, audit.WorkflowTypeSqlReview)
		if err != nil {
			return err
		}
		if !ok {
			return bizerror.ErrForbidden
		}
		return nil
	}
}

func hasReviewPermission(s *session.Session, wf *SqlWorkflow) error {
	if s.Perms.HasRole(authority.PermSqlReview) || s.Perms.IsSuperuser() {
		return nil
	}
	return bizerror.ErrForbidden
}

func hasSubmitPermission(s *session.Session) error {
	if s.Perms.HasRole(authority.PermSqlSubmit) || s.Perms.IsSuperuser() {
		return nil
	}
	return bizerror.ErrForbidden
}

// canExecute allows the submitter holding sql_execute, or a member of the workflow's
// resource group holding sql_execute_for_resource_group.
func canExecute(s *session.Session, wf *SqlWorkflow) error {
	if isExecutor(s, wf) {
		return nil
	}
	return bizerror.ErrForbidden
}

func isExecutor(s *session.Session, wf *SqlWorkflow) bool {
	if s.Perms.IsSuperuser() {
		return true
	}
	if isSubmitter(s, wf) && s.Perms.HasRole(authority.PermSqlExecute) {
		return true
	}
	return s.Perms.HasRole(authority.PermSqlExecuteForResourceGroup) && s.ResourceGroups.Has(wf.GroupID)
}

func isSubmitter(s *session.Session, wf *SqlWorkflow) bool {
	return s.Identity.Name != "" && s.Identity.Name == wf.Engineer
}

// canCancel allows the submitter at any time. Others need review authority while the workflow
// is reviewed, and execute authority afterwards.
func canCancel(db *gorm.DB) Guard {
	review := canReview(db)
	return func(s *session.Session, wf *SqlWorkflow) error {
		if isSubmitter(s, wf) {
			return nil
		}
		if wf.Status == StatusManReviewing {
			return review(s, wf)
		}
		return canExecute(s, wf)
	}
}

// inRunWindow requires at to fall inside the execution window. An unset bound is open.
func inRunWindow(at time.Time) Guard {
	return func(s *session.Session, wf *SqlWorkflow) error {
		if wf.RunDateStart != nil && at.Before(*wf.RunDateStart) {
			return bizerror.ErrOutOfRunWindow
		}
		if wf.RunDateEnd != nil && at.After(*wf.RunDateEnd) {
			return bizerror.ErrOutOfRunWindow
		}
		return nil
	}
}

package tests

import (
	"errors"
	"testing"

	"midad_platform/midad/schema"
)

func TestAssignSupervisor(t *testing.T) {
	env := setupTestEnv(t)

	admin, err := env.adminClient()
	if err != nil {
		t.Fatal(err)
	}

	student, err := env.newUser("student1", "")
	if err != nil {
		t.Fatal(err)
	}

	prof, err := env.newUser("prof1", "professor")
	if err != nil {
		t.Fatal(err)
	}

	// Only admins may assign.
	if _, err := prof.assignSupervisor(student.userId, prof.userId); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}

	assignment, err := admin.assignSupervisor(student.userId, prof.userId)
	if err != nil {
		t.Fatal(err)
	}
	if assignment.StudentName != "student1" || assignment.SupervisorName != "prof1" {
		t.Fatalf("invalid assignment %+v", assignment)
	}

	// One supervisor per student.
	otherProf, err := env.newUser("prof2", "professor")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := admin.assignSupervisor(student.userId, otherProf.userId); err == nil {
		t.Fatal("second assignment for the same student should fail")
	}

	// Students cannot be supervisors and professors cannot be supervised.
	if _, err := admin.assignSupervisor(prof.userId, otherProf.userId); err == nil {
		t.Fatal("assigning a professor as student should fail")
	}
	otherStudent, err := env.newUser("student2", "")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := admin.assignSupervisor(otherStudent.userId, student.userId); err == nil {
		t.Fatal("assigning a student as supervisor should fail")
	}

	// Both parties are notified.
	studentNotifications, err := student.listNotifications(true)
	if err != nil {
		t.Fatal(err)
	}
	if len(studentNotifications) != 1 {
		t.Fatalf("expected 1 student notification, got %d", len(studentNotifications))
	}
	profNotifications, err := prof.listNotifications(true)
	if err != nil {
		t.Fatal(err)
	}
	if len(profNotifications) != 1 {
		t.Fatalf("expected 1 supervisor notification, got %d", len(profNotifications))
	}

	assignments, err := admin.listAssignments()
	if err != nil {
		t.Fatal(err)
	}
	if len(assignments) != 1 || assignments[0].Id != assignment.Id {
		t.Fatalf("invalid assignment list %v", assignments)
	}
}

func TestSubmissionReviewFlow(t *testing.T) {
	env := setupTestEnv(t)

	admin, err := env.adminClient()
	if err != nil {
		t.Fatal(err)
	}

	student, err := env.newUser("student1", "")
	if err != nil {
		t.Fatal(err)
	}

	prof, err := env.newUser("prof1", "professor")
	if err != nil {
		t.Fatal(err)
	}

	if _, err := admin.assignSupervisor(student.userId, prof.userId); err != nil {
		t.Fatal(err)
	}

	submission, err := student.submitChapter(1, "المقدمة", "محتوى الفصل الأول")
	if err != nil {
		t.Fatal(err)
	}
	if submission.Status != schema.SubmissionPending {
		t.Fatalf("new submission should be pending, got %v", submission.Status)
	}

	// The supervisor hears about the submission.
	profNotifications, err := prof.listNotifications(true)
	if err != nil {
		t.Fatal(err)
	}
	if len(profNotifications) != 2 {
		t.Fatalf("expected assignment + submission notifications, got %d", len(profNotifications))
	}

	// The supervisor sees the submission, an unrelated professor does not.
	pending, err := prof.listSubmissions("pending")
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 1 || pending[0].Id != submission.Id || pending[0].StudentName != "student1" {
		t.Fatalf("invalid pending list %v", pending)
	}

	otherProf, err := env.newUser("prof2", "professor")
	if err != nil {
		t.Fatal(err)
	}
	otherList, err := otherProf.listSubmissions("")
	if err != nil {
		t.Fatal(err)
	}
	if len(otherList) != 0 {
		t.Fatal("unassigned professor should see no submissions")
	}
	if _, err := otherProf.getSubmission(submission.Id.String()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("foreign submission should read as not found, got %v", err)
	}

	// Commenting moves the submission under review and notifies the student.
	comment, err := prof.commentOnSubmission(submission.Id.String(), "راجع التوثيق في الصفحة الثانية", "correction")
	if err != nil {
		t.Fatal(err)
	}
	if comment.Kind != schema.CommentCorrection {
		t.Fatalf("invalid comment %+v", comment)
	}

	updated, err := student.getSubmission(submission.Id.String())
	if err != nil {
		t.Fatal(err)
	}
	if updated.Status != schema.SubmissionUnderReview || updated.ReviewedAt == nil {
		t.Fatalf("submission should be under review, got %+v", updated)
	}
	if len(updated.Comments) != 1 || updated.Comments[0].Comment != "راجع التوثيق في الصفحة الثانية" {
		t.Fatalf("invalid comments %v", updated.Comments)
	}

	studentNotifications, err := student.listNotifications(true)
	if err != nil {
		t.Fatal(err)
	}
	if len(studentNotifications) != 2 {
		t.Fatalf("expected assignment + comment notifications, got %d", len(studentNotifications))
	}

	// Approval settles the chapter.
	if err := prof.reviewSubmission(submission.Id.String(), schema.SubmissionApproved); err != nil {
		t.Fatal(err)
	}
	updated, err = student.getSubmission(submission.Id.String())
	if err != nil {
		t.Fatal(err)
	}
	if updated.Status != schema.SubmissionApproved {
		t.Fatalf("submission should be approved, got %v", updated.Status)
	}

	// Students cannot review.
	if err := student.reviewSubmission(submission.Id.String(), schema.SubmissionApproved); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
}

func TestStudentProgressSummaries(t *testing.T) {
	env := setupTestEnv(t)

	admin, err := env.adminClient()
	if err != nil {
		t.Fatal(err)
	}

	student, err := env.newUser("student1", "")
	if err != nil {
		t.Fatal(err)
	}

	prof, err := env.newUser("prof1", "professor")
	if err != nil {
		t.Fatal(err)
	}

	if _, err := admin.assignSupervisor(student.userId, prof.userId); err != nil {
		t.Fatal(err)
	}

	if _, err := student.saveResearch("أثر التقنية على التعليم", "المحتوى الكامل للبحث", "in_progress"); err != nil {
		t.Fatal(err)
	}

	for chapter := 1; chapter <= 3; chapter++ {
		submission, err := student.submitChapter(chapter, "فصل", "محتوى")
		if err != nil {
			t.Fatal(err)
		}
		if chapter <= 2 {
			if err := prof.reviewSubmission(submission.Id.String(), schema.SubmissionApproved); err != nil {
				t.Fatal(err)
			}
		}
	}

	summaries, err := prof.studentProgress()
	if err != nil {
		t.Fatal(err)
	}
	if len(summaries) != 1 {
		t.Fatalf("expected 1 student summary, got %d", len(summaries))
	}

	progress := summaries[0].Progress
	if progress.TotalChapters != 3 || progress.ApprovedChapters != 2 || progress.PendingReviews != 1 {
		t.Fatalf("invalid chapter counts %+v", progress)
	}
	// 2 approved chapters of an expected 5.
	if progress.CompletionPercentage != 40 {
		t.Fatalf("expected 40%% completion, got %d", progress.CompletionPercentage)
	}
	if progress.ResearchTitle != "أثر التقنية على التعليم" {
		t.Fatalf("invalid research title %v", progress.ResearchTitle)
	}

	// A student cannot pull the supervisor dashboard.
	if _, err := student.studentProgress(); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
}

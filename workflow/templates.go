package workflow

import "github.com/edukit/agent-workflow/types"

// Pre-built workflows for common teaching tasks. These are ordinary linear
// agent task chains and carry no extra engine semantics.

// LessonPlanningWorkflow assembles a curriculum-to-lesson-plan pipeline.
func LessonPlanningWorkflow() (*types.Workflow, error) {
	return NewBuilder("lesson-planning", "Lesson Planning").
		Describe("Analyzes curriculum standards and drafts a full lesson plan.").
		AgentTask("Analyze Standards", "curriculum-agent", "analyze_standards").
		WithID("analyze-standards").
		WithOutputMapping(map[string]string{
			"standards":  "result.standards",
			"objectives": "result.objectives",
		}).
		AgentTask("Outline Lesson", "planning-agent", "outline_lesson").
		WithID("outline-lesson").
		WithInputMapping(map[string]string{
			"standards":  "standards",
			"objectives": "objectives",
		}).
		WithOutputMapping(map[string]string{
			"outline": "result.outline",
		}).
		AgentTask("Draft Lesson Plan", "planning-agent", "draft_lesson_plan").
		WithID("draft-lesson-plan").
		WithOutputMapping(map[string]string{
			"lessonPlan": "result.lessonPlan",
		}).
		Build()
}

// AssessmentWorkflow assembles an assessment creation pipeline.
func AssessmentWorkflow() (*types.Workflow, error) {
	return NewBuilder("assessment-creation", "Assessment Creation").
		Describe("Generates assessment questions and an answer rubric.").
		AgentTask("Generate Questions", "assessment-agent", "generate_questions").
		WithID("generate-questions").
		WithOutputMapping(map[string]string{
			"questions": "result.questions",
		}).
		AgentTask("Build Rubric", "assessment-agent", "build_rubric").
		WithID("build-rubric").
		WithInputMapping(map[string]string{
			"questions": "questions",
		}).
		WithOutputMapping(map[string]string{
			"rubric": "result.rubric",
		}).
		Build()
}

// FeedbackWorkflow assembles a student feedback pipeline.
func FeedbackWorkflow() (*types.Workflow, error) {
	return NewBuilder("student-feedback", "Student Feedback").
		Describe("Reviews submitted work and writes personalized feedback.").
		AgentTask("Review Submission", "grading-agent", "review_submission").
		WithID("review-submission").
		WithOutputMapping(map[string]string{
			"review": "result.review",
			"score":  "result.score",
		}).
		AgentTask("Write Feedback", "feedback-agent", "write_feedback").
		WithID("write-feedback").
		WithInputMapping(map[string]string{
			"review": "review",
			"score":  "score",
		}).
		WithOutputMapping(map[string]string{
			"feedback": "result.feedback",
		}).
		Build()
}

// Package distill projects raw archive events into compact records.
//
// Distill is a pure function over the decoded envelope: no I/O, no state,
// safe to re-run on the same event any number of times.
package distill

import (
	"encoding/json"

	"ghdistill/internal/services/ingest/domain"
)

// payloadTypeMap is the closed table of known raw event types and their
// normalized category names. Unknown types simply omit the category.
var payloadTypeMap = map[string]string{
	"CommitCommentEvent":            "CommitComment",
	"CreateEvent":                   "Create",
	"DeleteEvent":                   "Delete",
	"ForkEvent":                     "Fork",
	"GollumEvent":                   "Gollum",
	"IssueCommentEvent":             "IssueComment",
	"IssuesEvent":                   "Issue",
	"MemberEvent":                   "Member",
	"PublicEvent":                   "Public",
	"PullRequestEvent":              "PullRequest",
	"PullRequestReviewEvent":        "PullRequestReview",
	"PullRequestReviewCommentEvent": "PullRequestReviewComment",
	"PushEvent":                     "Push",
	"ReleaseEvent":                  "Release",
	"SponsorshipEvent":              "Sponsorship",
	"WatchEvent":                    "Watch",
	"WorkflowDispatchEvent":         "WorkflowDispatch",
	"WorkflowJobEvent":              "WorkflowJob",
	"WorkflowRunEvent":              "WorkflowRun",
}

// Service implements domain.Distiller
type Service struct{}

// New constructs the distillation service
func New() Service { return Service{} }

// Distill maps one raw event to a DistilledEvent. It returns false when any
// of the required fields (repo name, type, created_at, actor id) is missing,
// in which case the event is discarded.
func (Service) Distill(env domain.EventEnvelope) (domain.DistilledEvent, bool) {
	if env.Repo.Name == "" || env.Type == "" || env.CreatedAt == "" || env.Actor.ID == 0 {
		return domain.DistilledEvent{}, false
	}

	ev := domain.DistilledEvent{
		CaseID:      env.Repo.Name,
		Activity:    env.Type,
		Timestamp:   env.CreatedAt,
		ActorID:     env.Actor.ID,
		RepoName:    env.Repo.Name,
		PayloadType: payloadTypeMap[env.Type],
		ActorLogin:  env.Actor.Login,
		OrgLogin:    env.Org.Login,
	}
	if env.Repo.ID != 0 {
		ev.RepoID = ptr(env.Repo.ID)
	}

	addPayloadExtras(&ev, env)
	return ev, true
}

// Payload shapes are decoded per event type; only the extras we keep are
// modeled. Numbers arrive as json.Number-free plain fields, pointers keep
// the copy-only-if-present semantics.

type issuePayload struct {
	Action string `json:"action"`
	Issue  struct {
		Number *int64 `json:"number"`
		State  string `json:"state"`
	} `json:"issue"`
	Comment struct {
		ID *int64 `json:"id"`
	} `json:"comment"`
}

type prPayload struct {
	Action      string `json:"action"`
	Number      *int64 `json:"number"`
	PullRequest struct {
		Number *int64 `json:"number"`
		Merged *bool  `json:"merged"`
	} `json:"pull_request"`
	Comment struct {
		ID *int64 `json:"id"`
	} `json:"comment"`
}

type pushPayload struct {
	Ref     string            `json:"ref"`
	Size    *int64            `json:"size"`
	Commits []json.RawMessage `json:"commits"`
}

type createDeletePayload struct {
	RefType string `json:"ref_type"`
}

type releasePayload struct {
	Action  string `json:"action"`
	Release struct {
		TagName string `json:"tag_name"`
	} `json:"release"`
}

type forkPayload struct {
	Forkee struct {
		FullName string `json:"full_name"`
	} `json:"forkee"`
}

type commentPayload struct {
	Action  string `json:"action"`
	Comment struct {
		ID *int64 `json:"id"`
	} `json:"comment"`
}

func addPayloadExtras(ev *domain.DistilledEvent, env domain.EventEnvelope) {
	if len(env.Payload) == 0 {
		return
	}
	switch env.Type {
	case "IssuesEvent", "IssueCommentEvent":
		var p issuePayload
		if json.Unmarshal(env.Payload, &p) != nil {
			return
		}
		ev.Action = p.Action
		ev.IssueNumber = p.Issue.Number
		ev.IssueState = p.Issue.State
		ev.CommentID = p.Comment.ID

	case "PullRequestEvent", "PullRequestReviewEvent", "PullRequestReviewCommentEvent":
		var p prPayload
		if json.Unmarshal(env.Payload, &p) != nil {
			return
		}
		ev.Action = p.Action
		ev.PRNumber = p.Number
		if ev.PRNumber == nil {
			ev.PRNumber = p.PullRequest.Number
		}
		ev.PRMerged = p.PullRequest.Merged
		ev.CommentID = p.Comment.ID

	case "PushEvent":
		var p pushPayload
		if json.Unmarshal(env.Payload, &p) != nil {
			return
		}
		ev.PushRef = p.Ref
		ev.PushSize = p.Size
		if n := len(p.Commits); n > 0 {
			ev.PushCommitCount = ptr(int64(n))
		}

	case "CreateEvent", "DeleteEvent":
		var p createDeletePayload
		if json.Unmarshal(env.Payload, &p) != nil {
			return
		}
		ev.CreateRefType = p.RefType

	case "ReleaseEvent":
		var p releasePayload
		if json.Unmarshal(env.Payload, &p) != nil {
			return
		}
		ev.Action = p.Action
		ev.ReleaseTag = p.Release.TagName

	case "ForkEvent":
		var p forkPayload
		if json.Unmarshal(env.Payload, &p) != nil {
			return
		}
		ev.ForkFullName = p.Forkee.FullName

	case "CommitCommentEvent":
		var p commentPayload
		if json.Unmarshal(env.Payload, &p) != nil {
			return
		}
		ev.Action = p.Action
		ev.CommentID = p.Comment.ID
	}
}

func ptr[T any](v T) *T { return &v }

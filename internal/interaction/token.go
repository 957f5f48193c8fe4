// Package interaction parses the identifiers that cross the chat-platform
// boundary into typed requests.
//
// Buttons and modals carry an opaque custom id made of an action tag and the
// (community, subject, role) fields, joined by ':':
//
//	open_ign:<community>:<member>:<role>      OpenCollectionForm
//	ign_modal:<community>:<member>:<role>     SubmitCollectionForm
//	req_approve:<community>:<request>         Decision{Approved}
//	req_reject:<community>:<request>          Decision{Rejected}
//
// Slash commands are identified by name (CommandInvocation). Parse is the only
// place that looks at raw tokens; everything downstream switches on the Go type.
package interaction

import (
	"fmt"
	"strings"

	"github.com/tbourn/go-alliance-bot/internal/domain"
	"github.com/tbourn/go-alliance-bot/internal/services"
)

// ErrMalformed is returned for tokens that do not parse. It wraps
// services.ErrInvalidInput.
var ErrMalformed = fmt.Errorf("malformed interaction token: %w", services.ErrInvalidInput)

const (
	sep = ":"

	tagOpenForm   = "open_ign"
	tagSubmitForm = "ign_modal"
	tagApprove    = "req_approve"
	tagReject     = "req_reject"

	// maxTokenLen is Discord's custom_id limit.
	maxTokenLen = 100
)

// Slash command names.
const (
	CmdAllianceAdd       = "alliance-add"
	CmdAllianceEdit      = "alliance-edit"
	CmdAllianceApprovers = "alliance-approvers"
	CmdAllianceList      = "alliance-list"
	CmdVerify            = "verify"
)

// Request is one of OpenCollectionForm, SubmitCollectionForm, Decision or
// CommandInvocation.
type Request interface {
	isRequest()
}

// OpenCollectionForm is a press on the "Submit IGN" button.
type OpenCollectionForm struct {
	CommunityID string
	MemberID    string
	RoleID      string
}

// SubmitCollectionForm is a submitted IGN modal.
type SubmitCollectionForm struct {
	CommunityID string
	MemberID    string
	RoleID      string
}

// Decision is an approve/reject press on an approval card.
type Decision struct {
	CommunityID string
	RequestID   string
	Outcome     domain.RequestStatus
}

// CommandInvocation is a slash command.
type CommandInvocation struct {
	Name string
}

func (OpenCollectionForm) isRequest()   {}
func (SubmitCollectionForm) isRequest() {}
func (Decision) isRequest()             {}
func (CommandInvocation) isRequest()    {}

// Token encodes the button id.
func (o OpenCollectionForm) Token() string {
	return join(tagOpenForm, o.CommunityID, o.MemberID, o.RoleID)
}

// Form returns the modal that this button opens.
func (o OpenCollectionForm) Form() SubmitCollectionForm {
	return SubmitCollectionForm(o)
}

// Token encodes the modal id.
func (s SubmitCollectionForm) Token() string {
	return join(tagSubmitForm, s.CommunityID, s.MemberID, s.RoleID)
}

// Token encodes the decision button id.
func (d Decision) Token() string {
	tag := tagReject
	if d.Outcome == domain.StatusApproved {
		tag = tagApprove
	}
	return join(tag, d.CommunityID, d.RequestID)
}

// DecisionTokens returns the approve and reject button ids for a request.
func DecisionTokens(communityID, requestID string) (approve, reject string) {
	approve = Decision{CommunityID: communityID, RequestID: requestID, Outcome: domain.StatusApproved}.Token()
	reject = Decision{CommunityID: communityID, RequestID: requestID, Outcome: domain.StatusRejected}.Token()
	return approve, reject
}

// Parse decodes a button or modal custom id.
func Parse(token string) (Request, error) {
	if token == "" || len(token) > maxTokenLen {
		return nil, ErrMalformed
	}
	tag, rest, ok := strings.Cut(token, sep)
	if !ok {
		return nil, fmt.Errorf("%q: %w", token, ErrMalformed)
	}
	parts := strings.Split(rest, sep)
	for _, p := range parts {
		if p == "" {
			return nil, fmt.Errorf("%q: empty field: %w", token, ErrMalformed)
		}
	}

	switch tag {
	case tagOpenForm, tagSubmitForm:
		if len(parts) != 3 {
			return nil, fmt.Errorf("%q: want 3 fields: %w", token, ErrMalformed)
		}
		if tag == tagOpenForm {
			return OpenCollectionForm{CommunityID: parts[0], MemberID: parts[1], RoleID: parts[2]}, nil
		}
		return SubmitCollectionForm{CommunityID: parts[0], MemberID: parts[1], RoleID: parts[2]}, nil

	case tagApprove, tagReject:
		if len(parts) != 2 {
			return nil, fmt.Errorf("%q: want 2 fields: %w", token, ErrMalformed)
		}
		outcome := domain.StatusRejected
		if tag == tagApprove {
			outcome = domain.StatusApproved
		}
		return Decision{CommunityID: parts[0], RequestID: parts[1], Outcome: outcome}, nil
	}
	return nil, fmt.Errorf("unknown action %q: %w", tag, ErrMalformed)
}

// Command validates a slash command name.
func Command(name string) (CommandInvocation, error) {
	switch name {
	case CmdAllianceAdd, CmdAllianceEdit, CmdAllianceApprovers, CmdAllianceList, CmdVerify:
		return CommandInvocation{Name: name}, nil
	}
	return CommandInvocation{}, fmt.Errorf("unknown command %q: %w", name, ErrMalformed)
}

func join(tag string, fields ...string) string {
	return tag + sep + strings.Join(fields, sep)
}

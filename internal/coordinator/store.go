package coordinator

import (
	"time"

	"github.com/Skycomm/email-ai-manager/internal/model"
)

// Store is the persistence surface the coordinator depends on. It is
// satisfied by *repository.Store; tests use in-memory fakes.
type Store interface {
	UpsertEmail(e *model.EmailRecord) error
	SaveEmail(e *model.EmailRecord) error
	GetEmail(id string) (*model.EmailRecord, error)
	GetEmailByToken(token string) (*model.EmailRecord, error)
	GetEmailsByState(state model.EmailState, limit int) ([]model.EmailRecord, error)
	GetStuckNewEmails() ([]model.EmailRecord, error)
	GetLatestAwaitingApproval() (*model.EmailRecord, error)
	GetThreadEmails(threadID, excludeID string, limit int) ([]model.EmailRecord, error)
	GetDueFollowUps(now time.Time) ([]model.EmailRecord, error)
	GetArchivableFYI(now time.Time, age time.Duration) ([]model.EmailRecord, error)
	GetAutoSentSince(cutoff time.Time) ([]model.EmailRecord, error)

	IsMessageProcessed(messageID, mailbox string) (bool, error)
	MarkMessageProcessed(messageID, mailbox string) error
	IsSenderMuted(senderEmail string) (bool, error)
	MuteSender(pattern, reason string) (*model.MutedSender, error)

	GetActiveSpamRules() ([]model.SpamRule, error)
	GetActiveEmailRules() ([]model.EmailRule, error)
	UpsertSpamRule(ruleType, pattern string, confidence int) (*model.SpamRule, error)
	ReportSpamFalsePositiveByPattern(patterns ...string) error
	RecordEmailRuleHit(id string) error

	AppendAudit(entry *model.AuditLogEntry) error

	GetSetting(key string) (string, error)
	SetSetting(key, value string) error
	GetSettingJSON(key string, out interface{}) (bool, error)
	SetSettingJSON(key string, v interface{}) error
}

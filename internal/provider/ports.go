package provider

import (
	"context"
)

// DNSProvider is the outbound DNS hosting port used by the zone, nameserver
// and record steps plus the bulk removal job.
type DNSProvider interface {
	CreateZone(ctx context.Context, domainName string) (zoneID string, err error)
	Nameservers(ctx context.Context, zoneID string) ([2]string, error)
	CheckPropagation(ctx context.Context, domainName string, nameservers [2]string) (bool, error)
	CreateRecords(ctx context.Context, zoneID, domainName string) error
	DeleteZone(ctx context.Context, domainName string) error
}

// MailboxProvider is the outbound mailbox platform port used by the tenant
// and mailbox steps plus the bulk removal job.
type MailboxProvider interface {
	VerifyLogin(ctx context.Context, login, password string) error
	AddDomain(ctx context.Context, tenantID, domainName string) error
	CreateMailbox(ctx context.Context, tenantID, email, password string) error
	EnableSMTPAuth(ctx context.Context, tenantID, email string) error
	RemoveDomain(ctx context.Context, domainName string) error
}

// Sequencer is the outbound sending-platform port used by the upload step
// and the bulk upload job.
type Sequencer interface {
	ValidateCredentials(ctx context.Context, accountID string) error
	UploadAccount(ctx context.Context, accountID, email, password string) error
}

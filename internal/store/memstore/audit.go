package memstore

import (
	"context"

	"github.com/fluxmeter/billing-core/internal/store"
)

func (m *MemStore) RecordAudit(ctx context.Context, entry store.AuditLog) error {
	m.withLock(func() {
		m.data.auditLogs = append(m.data.auditLogs, entry)
	})
	return nil
}

package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE flows (
				id VARCHAR(255) PRIMARY KEY,
				tenant_id VARCHAR(255) NOT NULL DEFAULT '',
				name VARCHAR(255) NOT NULL,
				type VARCHAR(100) NOT NULL DEFAULT '',
				description TEXT NOT NULL DEFAULT '',
				status VARCHAR(50) NOT NULL CHECK (status IN ('draft', 'published', 'unpublished', 'archived')),
				nodes JSONB NOT NULL DEFAULT '[]',
				edges JSONB NOT NULL DEFAULT '[]',
				variables JSONB NOT NULL DEFAULT '[]',
				settings JSONB,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL,
				published_at TIMESTAMP WITH TIME ZONE,
				archived_at TIMESTAMP WITH TIME ZONE
			);

			CREATE INDEX idx_flows_tenant_status ON flows(tenant_id, status);
			CREATE INDEX idx_flows_created_at ON flows(created_at);
		`,
		2: `
			-- Sessions are stored as whole snapshots; the columns exist for lookups only.
			CREATE TABLE sessions (
				id VARCHAR(255) PRIMARY KEY,
				flow_id VARCHAR(255) NOT NULL,
				tenant_id VARCHAR(255) NOT NULL DEFAULT '',
				status VARCHAR(50) NOT NULL,
				snapshot JSONB NOT NULL,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				last_activity_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_sessions_flow_id ON sessions(flow_id);
			CREATE INDEX idx_sessions_status_last_activity ON sessions(status, last_activity_at);
		`,
	}
}

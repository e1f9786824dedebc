package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE flows (
				id TEXT PRIMARY KEY,
				organization_id TEXT NOT NULL DEFAULT '',
				name VARCHAR(255) NOT NULL,
				nodes JSONB NOT NULL DEFAULT '[]',
				edges JSONB NOT NULL DEFAULT '[]',
				draft_nodes JSONB NOT NULL DEFAULT '[]',
				draft_edges JSONB NOT NULL DEFAULT '[]',
				variables JSONB NOT NULL DEFAULT '[]',
				viewport JSONB NOT NULL DEFAULT '{}',
				is_published BOOLEAN NOT NULL DEFAULT false,
				published_at TIMESTAMP WITH TIME ZONE,
				created_by_prompt TEXT NOT NULL DEFAULT '',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_flows_organization_id ON flows(organization_id);
			CREATE INDEX idx_flows_created_at ON flows(created_at);
		`,
		2: `
			CREATE TABLE triggers (
				id TEXT PRIMARY KEY,
				flow_id TEXT NOT NULL REFERENCES flows(id) ON DELETE CASCADE,
				organization_id TEXT NOT NULL DEFAULT '',
				type VARCHAR(50) NOT NULL CHECK (type IN ('first_contact', 'inactivity')),
				conditions JSONB NOT NULL DEFAULT '{}',
				priority INTEGER NOT NULL DEFAULT 0,
				is_active BOOLEAN NOT NULL DEFAULT true,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_triggers_flow_id ON triggers(flow_id);
			CREATE INDEX idx_triggers_active ON triggers(type, is_active, organization_id);
		`,
		3: `
			CREATE TABLE flow_sessions (
				id TEXT PRIMARY KEY,
				flow_id TEXT NOT NULL REFERENCES flows(id) ON DELETE CASCADE,
				trigger_id TEXT NOT NULL DEFAULT '',
				organization_id TEXT NOT NULL DEFAULT '',
				chat_id TEXT NOT NULL,
				customer_id TEXT NOT NULL DEFAULT '',
				current_node_id TEXT NOT NULL DEFAULT '',
				status VARCHAR(50) NOT NULL CHECK (status IN ('active', 'inactive', 'timeout')),
				variables JSONB NOT NULL DEFAULT '{}',
				message_history JSONB NOT NULL DEFAULT '[]',
				waiting VARCHAR(50) NOT NULL DEFAULT '',
				timeout_at TIMESTAMP WITH TIME ZONE,
				resume_at TIMESTAMP WITH TIME ZONE,
				debounce_timestamp TIMESTAMP WITH TIME ZONE,
				pending_input JSONB,
				error TEXT NOT NULL DEFAULT '',
				cancel_requested BOOLEAN NOT NULL DEFAULT false,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL,
				ended_at TIMESTAMP WITH TIME ZONE
			);

			-- A chat runs at most one active session.
			CREATE UNIQUE INDEX idx_flow_sessions_active_chat ON flow_sessions(chat_id) WHERE status = 'active';
			CREATE INDEX idx_flow_sessions_flow_chat ON flow_sessions(flow_id, chat_id, created_at);
			CREATE INDEX idx_flow_sessions_status ON flow_sessions(status);
		`,
	}
}

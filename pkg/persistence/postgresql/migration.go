package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			-- Flow definitions, one row per immutable version
			CREATE TABLE flows (
				id UUID PRIMARY KEY,
				name VARCHAR(255) NOT NULL,
				description TEXT NOT NULL DEFAULT '',
				version INTEGER NOT NULL,
				status VARCHAR(50) NOT NULL CHECK (status IN ('draft', 'active', 'archived')),
				metadata JSONB,
				created_by VARCHAR(255) NOT NULL DEFAULT '',
				activated_by VARCHAR(255) NOT NULL DEFAULT '',
				activated_at TIMESTAMP WITH TIME ZONE,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_flows_status ON flows(status);
			CREATE INDEX idx_flows_version ON flows(version);

			-- At most one active flow system-wide, enforced by the database
			CREATE UNIQUE INDEX idx_flows_single_active ON flows(status) WHERE status = 'active';

			CREATE TABLE flow_nodes (
				flow_id UUID NOT NULL REFERENCES flows(id) ON DELETE CASCADE,
				node_id VARCHAR(255) NOT NULL,
				node_type VARCHAR(50) NOT NULL,
				name VARCHAR(255) NOT NULL DEFAULT '',
				position_x INT NOT NULL DEFAULT 0,
				position_y INT NOT NULL DEFAULT 0,
				properties JSONB NOT NULL DEFAULT '{}',
				ordinal INT NOT NULL,
				PRIMARY KEY (flow_id, node_id)
			);

			CREATE INDEX idx_flow_nodes_flow_id ON flow_nodes(flow_id);
			CREATE INDEX idx_flow_nodes_type ON flow_nodes(node_type);

			CREATE TABLE flow_connections (
				flow_id UUID NOT NULL REFERENCES flows(id) ON DELETE CASCADE,
				id VARCHAR(255) NOT NULL,
				source_node_id VARCHAR(255) NOT NULL,
				target_node_id VARCHAR(255) NOT NULL,
				connection_type VARCHAR(50) NOT NULL,
				ordinal INT NOT NULL,
				PRIMARY KEY (flow_id, id)
			);

			CREATE INDEX idx_flow_connections_flow_id ON flow_connections(flow_id);
			CREATE INDEX idx_flow_connections_source ON flow_connections(flow_id, source_node_id);

			CREATE TABLE flow_executions (
				id VARCHAR(255) PRIMARY KEY,
				flow_id UUID NOT NULL REFERENCES flows(id),
				subject_id VARCHAR(255) NOT NULL,
				current_node_id VARCHAR(255),
				status VARCHAR(50) NOT NULL,
				context JSONB NOT NULL DEFAULT '{}',
				started_by VARCHAR(255) NOT NULL DEFAULT '',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				completed_at TIMESTAMP WITH TIME ZONE
			);

			CREATE INDEX idx_flow_executions_flow_id ON flow_executions(flow_id);
			CREATE INDEX idx_flow_executions_subject_id ON flow_executions(subject_id);
			CREATE INDEX idx_flow_executions_status ON flow_executions(status);
			CREATE INDEX idx_flow_executions_completed_at ON flow_executions(completed_at);

			CREATE TABLE flow_execution_steps (
				id VARCHAR(255) PRIMARY KEY,
				execution_id VARCHAR(255) NOT NULL REFERENCES flow_executions(id) ON DELETE CASCADE,
				node_id VARCHAR(255) NOT NULL,
				node_type VARCHAR(50) NOT NULL,
				step_order INT NOT NULL,
				status VARCHAR(50) NOT NULL,
				input_data JSONB NOT NULL DEFAULT '{}',
				output_data JSONB NOT NULL DEFAULT '{}',
				assigned_to VARCHAR(255),
				approved_by VARCHAR(255),
				approved_at TIMESTAMP WITH TIME ZONE,
				error_message TEXT NOT NULL DEFAULT '',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				completed_at TIMESTAMP WITH TIME ZONE
			);

			-- Makes a retried advancement fail fast instead of duplicating a step
			CREATE UNIQUE INDEX idx_flow_execution_steps_order ON flow_execution_steps(execution_id, step_order);
			CREATE INDEX idx_flow_execution_steps_execution_id ON flow_execution_steps(execution_id);
			CREATE INDEX idx_flow_execution_steps_open ON flow_execution_steps(node_type, status);
			CREATE INDEX idx_flow_execution_steps_assigned_to ON flow_execution_steps(assigned_to);

			CREATE TABLE flow_audit_log (
				id VARCHAR(255) PRIMARY KEY,
				flow_id VARCHAR(255) NOT NULL,
				execution_id VARCHAR(255),
				action VARCHAR(100) NOT NULL,
				actor VARCHAR(255) NOT NULL DEFAULT '',
				previous_state VARCHAR(50) NOT NULL DEFAULT '',
				details JSONB,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_flow_audit_log_flow_id ON flow_audit_log(flow_id);
			CREATE INDEX idx_flow_audit_log_created_at ON flow_audit_log(created_at);
		`,
	}
}

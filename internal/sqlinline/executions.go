package sqlinline

const QCreateExecutionsTable = `--sql 0b8f6d2e-3c41-4a7e-9d15-6e2f8a4c7b90
create table if not exists pipeline_executions (
    id uuid primary key,
    status text not null,
    version bigint not null,
    envelope jsonb not null,
    deadline_at timestamptz,
    created_at timestamptz not null default now(),
    updated_at timestamptz not null default now()
);
`

const QCreateExecutionsStatusIndex = `--sql 5d2a9c14-7b6e-4f08-8a3d-1c9e4b7f2a65
create index if not exists pipeline_executions_status_created_idx
    on pipeline_executions (status, created_at);
`

const QCreateExecutionsExpiryIndex = `--sql 9e4c1b7a-2d58-4f36-b0a9-7c3e5d1f8b24
create index if not exists pipeline_executions_deadline_idx
    on pipeline_executions (deadline_at)
    where status in ('suspended', 'running');
`

const QInsertExecution = `--sql 3a7e5c90-1f24-4b8d-9e6a-2c5d8f1b4e73
insert into pipeline_executions (id, status, version, envelope, deadline_at, created_at, updated_at)
values ($1, $2, $3, $4, $5, $6, $7);
`

const QSelectExecution = `--sql 7c1d4e8b-5a92-4f3e-b6d0-8e2a9c5f1d47
select envelope, version
from pipeline_executions
where id = $1;
`

// QUpdateExecutionCAS only matches while the stored version is still $2.
const QUpdateExecutionCAS = `--sql e2b6f9a1-8c35-4d7e-a4f1-5b9c3e7d2a08
update pipeline_executions
set status = $3,
    version = version + 1,
    envelope = $4,
    deadline_at = $5,
    updated_at = $6
where id = $1 and version = $2;
`

// QSelectOverdueExecutions finds suspensions past their deadline and runs
// past their lease.
const QSelectOverdueExecutions = `--sql 1f9a3c6e-4b7d-4e25-8c0b-d6a2e5f9b173
select envelope, version
from pipeline_executions
where status in ('suspended', 'running')
  and deadline_at is not null
  and deadline_at <= $1
order by deadline_at asc
limit $2;
`

package sqlinline

// QWorkerClaimExecution moves the oldest queued execution to running with a
// lease ending at $1 ($2 is the same instant as RFC 3339 text for the
// envelope) and returns its envelope with the advanced version.
const QWorkerClaimExecution = `--sql 4f55a9b7-4e9f-4e45-a3b3-5a532d21d9db
with next_exec as (
    select id
    from pipeline_executions
    where status = 'queued'
    order by created_at asc
    for update skip locked
    limit 1
),
updated as (
    update pipeline_executions
    set status = 'running',
        version = version + 1,
        deadline_at = $1,
        envelope = jsonb_set(
            jsonb_set(jsonb_set(envelope, '{status}', '"running"'), '{version}', to_jsonb(version + 1)),
            '{lease_until}', to_jsonb($2::text)),
        updated_at = now()
    where id in (select id from next_exec)
    returning envelope, version
)
select envelope, version from updated;
`

package sqlinline

const QCreateProviderCredentialsTable = `--sql 4b0f8e21-93c6-4d7a-b1f5-2e6a0c9d3f47
create table if not exists provider_credentials (
    provider   text primary key,
    token      text not null,
    properties jsonb not null default '{}'::jsonb,
    created_at timestamptz not null default now(),
    updated_at timestamptz not null default now()
);
`

const QSelectProviderCredentials = `--sql 8a8e0d52-7f5d-4f21-8b7d-f7d4b821eed7
select provider, token
from provider_credentials
where token <> ''
order by provider;
`

const QUpsertProviderCredential = `--sql 6d4f5660-0f7c-4f73-a1f3-9ab6d5e6c7a3
insert into provider_credentials (provider, token, properties, created_at, updated_at)
values ($1::text, $2::text, coalesce($3::jsonb, '{}'::jsonb), now(), now())
on conflict (provider) do update set
    token = excluded.token,
    properties = excluded.properties,
    updated_at = now();
`

const QDeleteProviderCredential = `--sql d2c7a9e4-5b18-4f03-9e6d-71a8c4b2f950
delete from provider_credentials
where provider = $1::text;
`

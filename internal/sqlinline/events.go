package sqlinline

const QInsertLedgerEvent = `--sql 50b9429f-b81e-4e20-8c34-5031b39df36e
insert into ledger_events(id, event_type, need_id, donation_id, amount, need_amount, need_status, occurred_at)
values ($1::uuid, $2::text, $3::uuid, nullif($4::text, '')::uuid, $5::numeric, $6::numeric, $7::text, $8::timestamptz)
returning seq;
`

const QClaimLedgerEvents = `--sql 7c30d749-7e5e-467a-a439-7e7c278481b7
select seq, id::text, event_type, need_id::text, coalesce(donation_id::text, ''), amount, need_amount, need_status, occurred_at
from ledger_events
where published_at is null
order by seq
limit $1::int
for update skip locked;
`

const QMarkLedgerEventsPublished = `--sql 57a5279b-f784-4fd6-b59d-fbf5b87dcce7
update ledger_events
set published_at = now()
where id::text = any($1::text[])
  and published_at is null;
`

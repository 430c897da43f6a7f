package sqlinline

const needColumns = `id::text, recipient_id, title, description, category, urgency, location, currency,
       goal_amount, current_amount, status, is_verified, verified_by, created_at, updated_at`

const QInsertNeed = `--sql d0ca5b91-9b75-440c-9629-453551a0a77a
insert into needs(id, recipient_id, title, description, category, urgency, location, currency,
                  goal_amount, current_amount, status, is_verified, verified_by, created_at, updated_at)
values ($1::uuid, $2::text, $3::text, $4::text, $5::text, $6::text, $7::text, $8::text,
        $9::numeric, $10::numeric, $11::text, $12::boolean, $13::text, $14::timestamptz, $14::timestamptz);
`

const QSelectNeedByID = `--sql 19a8cac0-4652-4cd0-bf93-086ce20976ec
select ` + needColumns + `
from needs
where id = $1::uuid;
`

const QSelectNeedStatus = `--sql 0578efa7-1af4-4823-be1d-9be74b1c924c
select status
from needs
where id = $1::uuid;
`

// QApplyNeedDelta is the atomic increment-and-recheck. The row lock taken by
// the update serialises concurrent donors; the status guard is re-evaluated
// against the latest committed row.
const QApplyNeedDelta = `--sql c780051e-a040-4a47-b0e1-8495d97f5e1d
update needs
set current_amount = greatest(current_amount + $2::numeric, 0),
    status = case
        when status = 'Cancelled' then status
        when greatest(current_amount + $2::numeric, 0) >= goal_amount then 'Fulfilled'
        when greatest(current_amount + $2::numeric, 0) > 0 then 'PartiallyFunded'
        else 'Pending'
    end,
    updated_at = now()
where id = $1::uuid
  and status = any($3::text[])
returning id::text, current_amount, goal_amount, status;
`

const QSetNeedStatus = `--sql 4d7c29e8-eab1-44bd-b77e-1cb95a1edd06
update needs
set status = $2::text,
    updated_at = now()
where id = $1::uuid
  and status = any($3::text[])
returning ` + needColumns + `;
`

const QMarkNeedVerified = `--sql 05b818a6-dd27-41b4-b3cf-bf503a6113db
update needs
set is_verified = true,
    verified_by = $2::text,
    updated_at = now()
where id = $1::uuid
returning ` + needColumns + `;
`

const QDeleteNeed = `--sql 47798c5d-a25d-4100-967f-bd96c4c0dd0a
delete from needs
where id = $1::uuid;
`

const QListNeeds = `--sql eba00da9-319b-47e7-99b3-49a914716080
select ` + needColumns + `
from needs
where ($1::text = '' or recipient_id = $1::text)
  and ($2::text = '' or status = $2::text)
  and ($3::text = '' or category = $3::text)
order by created_at desc, id
limit $4::int offset $5::int;
`

const QCountNeeds = `--sql 5a08e1f3-e032-4354-95d6-ad7e324640ad
select count(*)
from needs
where ($1::text = '' or recipient_id = $1::text)
  and ($2::text = '' or status = $2::text)
  and ($3::text = '' or category = $3::text);
`

package sqlinline

const donationColumns = `id::text, donor_id, need_id::text, amount, currency, payment_status,
       transaction_id, is_anonymous, created_at, updated_at`

const QInsertDonation = `--sql a245993a-0aef-44e9-b4d0-dda2ea7ed27c
insert into donations(id, donor_id, need_id, amount, currency, payment_status, transaction_id, is_anonymous, created_at, updated_at)
values ($1::uuid, $2::text, $3::uuid, $4::numeric, $5::text, $6::text, $7::text, $8::boolean, $9::timestamptz, $9::timestamptz);
`

const QSelectDonationByID = `--sql ed658937-cdcf-4b88-81dc-aa8902025eb5
select ` + donationColumns + `
from donations
where id = $1::uuid;
`

const QDeleteDonation = `--sql 67c83b77-3b81-4fdf-8237-013a98e9688d
delete from donations
where id = $1::uuid
returning ` + donationColumns + `;
`

const QUpdateDonationPayment = `--sql 8694367f-a4d8-4f63-80bf-b15d13c2ab10
update donations
set payment_status = $3::text,
    transaction_id = coalesce($4::text, transaction_id),
    updated_at = now()
where id = $1::uuid
  and payment_status = $2::text
returning ` + donationColumns + `;
`

const QListDonations = `--sql f11d6a43-e035-4ca7-aa62-176ee0834d15
select ` + donationColumns + `
from donations
where ($1::text = '' or donor_id = $1::text)
  and ($2::text = '' or need_id::text = $2::text)
order by created_at desc, id
limit $3::int offset $4::int;
`

const QCountDonations = `--sql 96d77721-97ee-4d27-9db7-b5734caf42ee
select count(*)
from donations
where ($1::text = '' or donor_id = $1::text)
  and ($2::text = '' or need_id::text = $2::text);
`

const QSumActiveDonations = `--sql 4a3d4e6a-dd0f-49d8-882e-0144f0e380b1
select coalesce(sum(amount), 0)
from donations
where need_id = $1::uuid
  and payment_status <> 'Failed';
`

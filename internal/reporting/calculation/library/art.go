// Package library holds the warehouse calculations used by the HIV reports.
//
// Follow-up calculations are bounded by the outcome window: from the ART start
// date to outcomePeriod months after it. Lookups that describe the state of care
// before ART (enrollment, eligibility) are bounded by onDate instead.
package library

import "github.com/ehr/cohortreports/internal/reporting/calculation"

// ArtStart yields each patient's ART start date, the earlier of the first HIV
// drug event and the ART start recorded at a transferring facility.
const ArtStart = `select x.patient_id, min(x.art_start) as art_start
  from (select de.patient_id, date(de.date_started) as art_start
          from kenyaemr_etl.etl_drug_event de
         where de.program = 'HIV' and de.voided = 0 and de.date_started is not null
        union all
        select e.patient_id, date(e.date_started_art_at_transferring_facility)
          from kenyaemr_etl.etl_hiv_enrollment e
         where e.voided = 0 and e.date_started_art_at_transferring_facility is not null) x
 group by x.patient_id`

// window adds the outcome window end to the ART start rows.
const window = `select s.patient_id, s.art_start, date_add(s.art_start, interval :outcomePeriod month) as window_end
  from (` + ArtStart + `) s`

// Concept ids as stored in the ETL tables.
const (
	cd4Count          = "5497"
	viralLoadCopies   = "856"
	viralLoadLDL      = "1305"
	transferInPatient = "160563"
	transferredOut    = "159492"
	died              = "160034"
)

var DateARV1 = calculation.Calculation{
	Name: "DateARV1",
	SQL: `select a.patient_id, a.art_start
from (` + ArtStart + `) a`,
}

var PersonAddress = calculation.Calculation{
	Name: "PersonAddress",
	SQL: `select pa.patient_id,
       concat_ws('/', nullif(pa.village, ''), nullif(pa.estate, ''), nullif(pa.landmark, '')) as address
from kenyaemr_etl.etl_person_address pa
where pa.voided = 0`,
}

var HeightAtArtStart = calculation.Calculation{
	Name: "HeightAtArtStart",
	SQL: `select f.patient_id, mid(max(concat(date(f.visit_date), f.height)), 11) as height
from kenyaemr_etl.etl_patient_hiv_followup f
inner join (` + ArtStart + `) a on a.patient_id = f.patient_id
where f.voided = 0 and f.height is not null and date(f.visit_date) <= a.art_start
group by f.patient_id`,
}

var WeightAtArtStart = calculation.Calculation{
	Name: "WeightAtArtStart",
	SQL: `select f.patient_id, mid(max(concat(date(f.visit_date), f.weight)), 11) as weight
from kenyaemr_etl.etl_patient_hiv_followup f
inner join (` + ArtStart + `) a on a.patient_id = f.patient_id
where f.voided = 0 and f.weight is not null and date(f.visit_date) <= a.art_start
group by f.patient_id`,
}

var DateOfFirstCTX = calculation.Calculation{
	Name: "DateOfFirstCTX",
	SQL: `select f.patient_id, min(date(f.visit_date)) as ctx_start
from kenyaemr_etl.etl_patient_hiv_followup f
where f.voided = 0 and f.ctx_dispensed in (105281, 74250, 1065)
group by f.patient_id`,
}

var DateOfEnrollmentArt = calculation.Calculation{
	Name: "DateOfEnrollmentArt",
	SQL: `select e.patient_id, min(date(e.visit_date)) as enrollment_date
from kenyaemr_etl.etl_hiv_enrollment e
where e.voided = 0 and date(e.visit_date) <= date(:onDate)
group by e.patient_id`,
}

var AgeAtARTInitiation = calculation.Calculation{
	Name: "AgeAtARTInitiation",
	SQL: `select d.patient_id, timestampdiff(YEAR, date(d.DOB), a.art_start) as age
from kenyaemr_etl.etl_patient_demographics d
inner join (` + ArtStart + `) a on a.patient_id = d.patient_id
where d.voided = 0 and d.DOB is not null`,
}

var DaysFromEnrollmentToArtInitiation = calculation.Calculation{
	Name: "DaysFromEnrollmentToArtInitiation",
	SQL: `select a.patient_id, datediff(a.art_start, min(date(e.visit_date))) as days
from (` + ArtStart + `) a
inner join kenyaemr_etl.etl_hiv_enrollment e on e.patient_id = a.patient_id and e.voided = 0
group by a.patient_id, a.art_start`,
}

// eligibility yields the first date a patient met a medical eligibility
// criterion and the criterion met.
const eligibility = `select el.patient_id,
       min(el.eligible_date) as eligible_date,
       mid(min(concat(el.eligible_date, el.reason)), 11) as reason
  from (select l.patient_id, date(l.visit_date) as eligible_date, 'CD4' as reason
          from kenyaemr_etl.etl_laboratory_extract l
         where l.lab_test = ` + cd4Count + ` and l.test_result <= 500 and date(l.visit_date) <= date(:onDate)
        union all
        select f.patient_id, date(f.visit_date), 'WHO Stage'
          from kenyaemr_etl.etl_patient_hiv_followup f
         where f.voided = 0 and f.who_stage in (1206, 1207, 1222, 1223) and date(f.visit_date) <= date(:onDate)
        union all
        select f.patient_id, date(f.visit_date), 'Pregnant'
          from kenyaemr_etl.etl_patient_hiv_followup f
         where f.voided = 0 and f.pregnancy_status = 1065 and date(f.visit_date) <= date(:onDate)) el
 group by el.patient_id`

var DaysFromArtEligibilityToArtInitiation = calculation.Calculation{
	Name: "DaysFromArtEligibilityToArtInitiation",
	SQL: `select a.patient_id, datediff(a.art_start, el.eligible_date) as days
from (` + ArtStart + `) a
inner join (` + eligibility + `) el on el.patient_id = a.patient_id`,
}

var DateAndReasonFirstMedicallyEligibleForArt = calculation.Calculation{
	Name:      "DateAndReasonFirstMedicallyEligibleForArt",
	Composite: true,
	SQL: `select el.patient_id, el.eligible_date as date, el.reason as reason
from (` + eligibility + `) el`,
}

var IsTransferInAndHasDate = calculation.Calculation{
	Name:      "IsTransferInAndHasDate",
	Composite: true,
	SQL: `select e.patient_id,
       if(max(e.patient_type = ` + transferInPatient + `), 'Yes', 'No') as state,
       max(if(e.patient_type = ` + transferInPatient + `, date(e.transfer_in_date), null)) as date
from kenyaemr_etl.etl_hiv_enrollment e
where e.voided = 0
group by e.patient_id`,
}

var IsArtTransferOutAndHasDate = calculation.Calculation{
	Name:      "IsArtTransferOutAndHasDate",
	Composite: true,
	SQL: `select w.patient_id,
       if(max(t.transfer_date) is null, 'No', 'Yes') as state,
       max(t.transfer_date) as date
from (` + window + `) w
left join (select d.patient_id, date(coalesce(d.transfer_date, d.visit_date)) as transfer_date
             from kenyaemr_etl.etl_patient_program_discontinuation d
            where d.program_name = 'HIV' and d.discontinuation_reason = ` + transferredOut + `) t
       on t.patient_id = w.patient_id and t.transfer_date between w.art_start and w.window_end
group by w.patient_id`,
}

var BaselineCd4CountAndDate = calculation.Calculation{
	Name:      "BaselineCd4CountAndDate",
	Composite: true,
	SQL: `select l.patient_id,
       mid(max(concat(date(l.visit_date), l.test_result)), 11) as value,
       max(date(l.visit_date)) as date
from kenyaemr_etl.etl_laboratory_extract l
inner join (` + ArtStart + `) a on a.patient_id = l.patient_id
where l.lab_test = ` + cd4Count + ` and date(l.visit_date) <= a.art_start
group by l.patient_id`,
}

var InitialArtRegimen = calculation.Calculation{
	Name: "InitialArtRegimen",
	SQL: `select de.patient_id, mid(min(concat(date(de.date_started), de.regimen_name)), 11) as regimen
from kenyaemr_etl.etl_drug_event de
where de.program = 'HIV' and de.voided = 0
group by de.patient_id`,
}

var CurrentArtRegimen = calculation.Calculation{
	Name: "CurrentArtRegimen",
	SQL: `select de.patient_id, mid(max(concat(date(de.date_started), de.regimen_name)), 11) as regimen
from kenyaemr_etl.etl_drug_event de
where de.program = 'HIV' and de.voided = 0
group by de.patient_id`,
}

var CurrentArtRegimenLine = calculation.Calculation{
	Name: "CurrentArtRegimenLine",
	SQL: `select de.patient_id, mid(max(concat(date(de.date_started), de.regimen_line)), 11) as regimen_line
from kenyaemr_etl.etl_drug_event de
where de.program = 'HIV' and de.voided = 0
group by de.patient_id`,
}

var LastCd4 = calculation.Calculation{
	Name:      "LastCd4",
	Composite: true,
	SQL: `select l.patient_id,
       mid(max(concat(date(l.visit_date), l.test_result)), 11) as value,
       max(date(l.visit_date)) as date
from kenyaemr_etl.etl_laboratory_extract l
inner join (` + window + `) w on w.patient_id = l.patient_id
where l.lab_test = ` + cd4Count + ` and date(l.visit_date) between w.art_start and w.window_end
group by l.patient_id`,
}

var ChangeInCd4Count = calculation.Calculation{
	Name: "ChangeInCd4Count",
	SQL: `select cur.patient_id, cur.value - base.value as change_in_cd4
from (select l.patient_id, mid(max(concat(date(l.visit_date), l.test_result)), 11) + 0 as value
        from kenyaemr_etl.etl_laboratory_extract l
        inner join (` + window + `) w on w.patient_id = l.patient_id
       where l.lab_test = ` + cd4Count + ` and date(l.visit_date) between w.art_start and w.window_end
       group by l.patient_id) cur
inner join (select l.patient_id, mid(max(concat(date(l.visit_date), l.test_result)), 11) + 0 as value
              from kenyaemr_etl.etl_laboratory_extract l
              inner join (` + ArtStart + `) a on a.patient_id = l.patient_id
             where l.lab_test = ` + cd4Count + ` and date(l.visit_date) <= a.art_start
             group by l.patient_id) base on base.patient_id = cur.patient_id`,
}

// lastViralLoad is the latest viral load result in the outcome window; an LDL
// result reads as "LDL".
const lastViralLoad = `select l.patient_id,
       mid(max(concat(date(l.visit_date), if(l.lab_test = ` + viralLoadLDL + `, 'LDL', l.test_result))), 11) as value,
       max(date(l.visit_date)) as date
  from kenyaemr_etl.etl_laboratory_extract l
  inner join (` + window + `) w on w.patient_id = l.patient_id
 where l.lab_test in (` + viralLoadCopies + `, ` + viralLoadLDL + `)
   and date(l.visit_date) between w.art_start and w.window_end
 group by l.patient_id`

var ViralLoad = calculation.Calculation{
	Name:      "ViralLoad",
	Composite: true,
	SQL: `select vl.patient_id, vl.value as value, vl.date as date
from (` + lastViralLoad + `) vl`,
}

var ViralSuppression = calculation.Calculation{
	Name: "ViralSuppression",
	SQL: `select vl.patient_id, if(vl.value = 'LDL' or vl.value + 0 < 1000, 'Yes', 'No') as suppressed
from (` + lastViralLoad + `) vl`,
}

var DateLastSeenArt = calculation.Calculation{
	Name: "DateLastSeenArt",
	SQL: `select f.patient_id, max(date(f.visit_date)) as last_seen
from kenyaemr_etl.etl_patient_hiv_followup f
inner join (` + window + `) w on w.patient_id = f.patient_id
where f.voided = 0 and date(f.visit_date) between w.art_start and w.window_end
group by f.patient_id`,
}

// lastAppointment is the next appointment date given at the last visit in the
// outcome window.
const lastAppointment = `select f.patient_id,
       mid(max(concat(date(f.visit_date), date(f.next_appointment_date))), 11) as next_appointment
  from kenyaemr_etl.etl_patient_hiv_followup f
  inner join (` + window + `) w on w.patient_id = f.patient_id
 where f.voided = 0 and f.next_appointment_date is not null
   and date(f.visit_date) between w.art_start and w.window_end
 group by f.patient_id`

var LastReturnVisitDateArtAnalysis = calculation.Calculation{
	Name: "LastReturnVisitDateArtAnalysis",
	SQL: `select ap.patient_id, date(ap.next_appointment) as next_appointment
from (` + lastAppointment + `) ap`,
}

// deaths is the earliest recorded death date per patient.
const deaths = `select dd.patient_id, min(dd.death_date) as death_date
  from (select d.patient_id, date(coalesce(d.date_died, d.visit_date)) as death_date
          from kenyaemr_etl.etl_patient_program_discontinuation d
         where d.discontinuation_reason = ` + died + `
        union all
        select p.patient_id, date(p.death_date)
          from kenyaemr_etl.etl_patient_demographics p
         where p.dead = 1 and p.death_date is not null) dd
 group by dd.patient_id`

var DateOfDeathArtAnalysis = calculation.Calculation{
	Name: "DateOfDeathArtAnalysis",
	SQL: `select w.patient_id, dt.death_date
from (` + window + `) w
inner join (` + deaths + `) dt on dt.patient_id = w.patient_id
where dt.death_date between w.art_start and w.window_end`,
}

// PatientArtOutCome classifies each patient at the end of the outcome window.
// Death takes precedence over transfer out, which takes precedence over
// stopping ART. A patient more than 90 days past the last appointment, measured
// at the window end or the evaluation date if earlier, is lost to follow up.
var PatientArtOutCome = calculation.Calculation{
	Name: "PatientArtOutCome",
	SQL: `select w.patient_id,
       case
           when dt.death_date between w.art_start and w.window_end then 'Died'
           when max(t.transfer_date) is not null then 'Transferred out'
           when max(st.stop_date) is not null then 'Stopped ART'
           when date_add(ap.next_appointment, interval 90 day) < least(w.window_end, date(:evaluationDate)) then 'Lost to follow up'
           else 'Alive and on ART'
       end as outcome
from (` + window + `) w
left join (` + deaths + `) dt on dt.patient_id = w.patient_id
left join (select d.patient_id, date(coalesce(d.transfer_date, d.visit_date)) as transfer_date
             from kenyaemr_etl.etl_patient_program_discontinuation d
            where d.program_name = 'HIV' and d.discontinuation_reason = ` + transferredOut + `) t
       on t.patient_id = w.patient_id and t.transfer_date between w.art_start and w.window_end
left join (select de.patient_id, date(de.date_discontinued) as stop_date
             from kenyaemr_etl.etl_drug_event de
            where de.program = 'HIV' and de.voided = 0 and de.discontinued = 1) st
       on st.patient_id = w.patient_id and st.stop_date between w.art_start and w.window_end
left join (` + lastAppointment + `) ap on ap.patient_id = w.patient_id
group by w.patient_id, w.art_start, w.window_end, dt.death_date, ap.next_appointment`,
}

package extractor

// field maps an output key to the label text that precedes its value.
type field struct {
	name  string
	label string
}

// fieldTable is an ordered selector table of label/value fields.
type fieldTable []field

// tableRule reads a table that follows a heading and projects two of its
// columns onto {number, description}.
type tableRule struct {
	name        string
	heading     string
	numberCol   string
	describeCol string
}

// Section element ids.
const (
	idSummary           = "summary"
	idFullTrialInfo     = "full_trial_info"
	idTrialResults      = "trial_results"
	idLocations         = "locations"
	queryContent        = "div.content"
	queryLabel          = "p.bolder"
	queryTrialDetails   = "div#trial_details"
	queryProducts       = "div#products"
	queryProductHeading = "div#products > h3"
	queryCountryHeading = "div#locations > div > h3"
	querySponsors       = "h2#sponsors"
)

var headerFields = fieldTable{
	{"title", "Title:"},
	{"euct_number", "EUCT number:"},
	{"protocol_code", "Protocol code:"},
}

var headerFallbackFields = fieldTable{
	{"euct_number", "EU trial number"},
	{"title", "Full title"},
}

var summaryTrialInfoFields = fieldTable{
	{"medical_condition", "Medical condition"},
	{"trial_phase", "Trial Phase:"},
	{"transition_trial", "Transition Trial:"},
	{"sponsor", "Sponsor:"},
	{"participants_type", "Participants type:"},
	{"age_range", "Age range:"},
	{"main_objective", "Main objective"},
}

const summaryLocationsLabel = "Locations:"

var overallStatusFields = fieldTable{
	{"status", "Overall trial status:"},
	{"start_date", "Start of Trial:"},
	{"end_date", "End of trial:"},
	{"global_end_date", "Global end of trial:"},
}

const applicationStatusLabel = "Application Trial Status:"

var trialNotificationFields = fieldTable{
	{"start_trial", "Start of trial:"},
	{"restart_trial", "Restart trial:"},
	{"end_trial", "End of trial:"},
	{"early_termination", "Early termination:"},
	{"termination_reason", "Reason for early termination:"},
}

var recruitmentNotificationFields = fieldTable{
	{"start_recruitment", "Start of recruitment:"},
	{"restart_recruitment", "Restart of recruitment:"},
	{"end_recruitment", "End of recruitment:"},
}

var trialDurationFields = fieldTable{
	{"estimated_recruitment_start", "Estimated recruitment start date"},
	{"estimated_end_date", "Estimated end of trial date"},
	{"estimated_global_end_date", "Estimated global end date"},
}

var applicationFields = fieldTable{
	{"type", "Application type:"},
	{"submission_date", "Submission date:"},
}

var assessmentPartOneFields = fieldTable{
	{"reference_member_state", "Reference Member State:"},
	{"conclusion", "Final conclusion:"},
	{"reporting_date", "Conclusion reporting date:"},
}

const (
	assessmentPartTwoHeading = "Assessment Part II"
	decisionHeading          = "Decision"
)

var trialIdentifierFields = fieldTable{
	{"eu_trial_number", "EU trial number:"},
	{"full_title", "Full title"},
	{"public_title", "Public title"},
	{"protocol_code", "Protocol code:"},
}

var trialInformationFields = fieldTable{
	{"trial_phase", "Trial phase:"},
	{"medical_condition", "Medical condition"},
	{"therapeutic_area", "Therapeutic area:"},
	{"main_objective", "Main objective"},
}

var criteriaTables = []tableRule{
	{"inclusion_criteria", "Principal inclusion criteria", "Inclusion criteria number", "Principal inclusion criteria (English)"},
	{"exclusion_criteria", "Principal exclusion criteria", "Exclusion criteria number", "Principal exclusion criteria (English)"},
	{"primary_endpoints", "Primary end points", "End point criteria number", "Primary end point (English)"},
	{"secondary_endpoints", "Secondary end points", "Secondary end point number", "Secondary end point (English)"},
}

var productDetailFields = fieldTable{
	{"name", "Medicinal product name:"},
	{"id", "EU medicinal product number"},
	{"form", "Pharmaceutical form:"},
	{"role", "Medicinal product role in trial:"},
}

var productCharacteristicFields = fieldTable{
	{"characteristics", "Medicinal product characteristics:"},
}

var productDosageFields = fieldTable{
	{"route", "Route of administration:"},
	{"duration", "Maximum duration of treatment:"},
	{"daily_dose", "Maximum daily dose allowed:"},
	{"total_dose", "Maximum total dose allowed:"},
}

var activeSubstanceFields = fieldTable{
	{"name", "Active Substance name:"},
	{"code", "EU Active Substance Code:"},
}

// resultBlocks maps each results branch key to the id of its h2 heading.
var resultBlocks = []struct {
	key string
	id  string
}{
	{"summaries", "results_summary"},
	{"layperson_summaries", "layperson_results_summary"},
	{"clinical_study_reports", "clinical_study_reports"},
}

const plannedSubjectsLabel = "Planned number of subjects:"

var siteFields = fieldTable{
	{"oms_id", "OMS ID:"},
	{"department", "Department name:"},
	{"location", "Site location:"},
	{"address", "Site street address:"},
	{"city", "Site city:"},
	{"post_code", "Site post code:"},
	{"country", "Site country:"},
}

var siteContactFields = fieldTable{
	{"first_name", "First name:"},
	{"last_name", "Last name:"},
	{"title", "Title:"},
	{"phone", "Telephone number:"},
	{"email", "Email:"},
}

const sponsorNameLabel = "Name of sponsor organisation:"

var sponsorDetailFields = fieldTable{
	{"id", "ID:"},
	{"address", "Address:"},
	{"city", "Town/City:"},
	{"post_code", "Post code:"},
	{"country", "Country:"},
	{"phone", "Phone:"},
	{"email", "Email address:"},
}

var sponsorContactFields = fieldTable{
	{"name", "Name of organisation:"},
	{"contact_name", "Functional contact point name:"},
	{"phone", "Phone:"},
	{"email", "Email address:"},
}

var sponsorContacts = []struct {
	key     string
	heading string
}{
	{"scientific_contact", "Scientific contact point"},
	{"public_contact", "Public contact point"},
}

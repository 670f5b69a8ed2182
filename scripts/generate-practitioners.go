//go:build ignore

// Package main generates a synthetic practitioner corpus for benchmarks.
// Usage: go run scripts/generate-practitioners.go -count 12000 -output testdata/practitioners.json
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
)

var (
	count      = flag.Int("count", 12000, "Number of practitioners to generate")
	outputPath = flag.String("output", "testdata/practitioners.json", "Output file")
	seed       = flag.Int64("seed", 42, "Random seed for reproducibility")
)

var specialties = []struct {
	name      string
	subspecs  []string
	procs     []string
	interests []string
}{
	{
		name:      "Cardiology",
		subspecs:  []string{"Electrophysiology", "Interventional Cardiology", "Heart Failure", "Cardiac Imaging"},
		procs:     []string{"Catheter Ablation", "Coronary Angiography", "Pacemaker Implantation", "Echocardiogram", "Angioplasty"},
		interests: []string{"arrhythmia", "atrial fibrillation", "chest pain", "palpitations", "hypertension"},
	},
	{
		name:      "Orthopaedic Surgery",
		subspecs:  []string{"Knee Surgery", "Hip Surgery", "Spinal Surgery", "Sports Injuries"},
		procs:     []string{"Knee Replacement", "Hip Replacement", "Arthroscopy", "Spinal Fusion"},
		interests: []string{"knee pain", "hip pain", "back pain", "sports injury", "arthritis"},
	},
	{
		name:      "Gastroenterology",
		subspecs:  []string{"Hepatology", "Endoscopy", "Inflammatory Bowel Disease"},
		procs:     []string{"Colonoscopy", "Gastroscopy", "ERCP", "Capsule Endoscopy"},
		interests: []string{"abdominal pain", "reflux", "irritable bowel syndrome", "liver disease"},
	},
	{
		name:      "Dermatology",
		subspecs:  []string{"Skin Cancer", "Paediatric Dermatology", "Laser Treatment"},
		procs:     []string{"Mole Removal", "Skin Biopsy", "Mohs Surgery"},
		interests: []string{"eczema", "psoriasis", "acne", "skin lesions", "melanoma"},
	},
	{
		name:      "Neurology",
		subspecs:  []string{"Epilepsy", "Movement Disorders", "Headache Medicine", "Stroke Medicine"},
		procs:     []string{"EEG", "Nerve Conduction Studies", "Botulinum Toxin Injection"},
		interests: []string{"migraine", "seizures", "tremor", "numbness", "multiple sclerosis"},
	},
	{
		name:      "Urology",
		subspecs:  []string{"Endourology", "Urological Oncology", "Female Urology"},
		procs:     []string{"Cystoscopy", "Prostate Biopsy", "Laser Lithotripsy", "TURP"},
		interests: []string{"kidney stones", "prostate", "urinary infection", "incontinence"},
	},
}

var insurers = []string{"Bupa", "AXA Health", "Aviva", "Vitality", "WPA", "Cigna"}

var localities = []struct {
	city    string
	outcode string
}{
	{"London", "SW5"}, {"London", "NW1"}, {"London", "EC1A"}, {"Manchester", "M1"},
	{"Birmingham", "B15"}, {"Leeds", "LS1"}, {"Bristol", "BS8"}, {"Cambridge", "CB2"},
}

var (
	firstNames = []string{"James", "Sarah", "David", "Emma", "Michael", "Priya", "Thomas", "Aisha", "Robert", "Helen", "Daniel", "Fatima", "Andrew", "Lucy", "Mark", "Elena"}
	lastNames  = []string{"Smith", "Patel", "Jones", "Khan", "Williams", "Taylor", "Brown", "Singh", "Davies", "Wilson", "Evans", "Ahmed", "Thomas", "Roberts", "Walker", "Wright"}
)

type procedureGroup struct {
	Name           string `json:"name"`
	AdmissionCount int    `json:"admission_count"`
}

type insuranceProvider struct {
	CanonicalName string `json:"canonical_name"`
	RawName       string `json:"raw_name,omitempty"`
}

type practitioner struct {
	ID                 string              `json:"id"`
	Name               string              `json:"name"`
	Title              string              `json:"title,omitempty"`
	Specialty          string              `json:"specialty,omitempty"`
	Subspecialties     []string            `json:"subspecialties,omitempty"`
	Description        string              `json:"description,omitempty"`
	ClinicalExpertise  string              `json:"clinical_expertise,omitempty"`
	Qualifications     string              `json:"qualifications,omitempty"`
	AddressLocality    string              `json:"address_locality,omitempty"`
	PostalCode         string              `json:"postal_code,omitempty"`
	ProcedureGroups    []procedureGroup    `json:"procedure_groups,omitempty"`
	InsuranceProviders []insuranceProvider `json:"insuranceProviders,omitempty"`
	PatientAgeGroups   []string            `json:"patient_age_group,omitempty"`
	Languages          []string            `json:"languages,omitempty"`
	Gender             string              `json:"gender,omitempty"`
	NHSBase            string              `json:"nhs_base,omitempty"`
	RatingValue        float64             `json:"rating_value,omitempty"`
	ReviewCount        int                 `json:"review_count,omitempty"`
	YearsExperience    int                 `json:"years_experience,omitempty"`
	Verified           bool                `json:"verified,omitempty"`
}

func main() {
	flag.Parse()
	rng := rand.New(rand.NewSource(*seed))

	records := make([]practitioner, 0, *count)
	for i := 0; i < *count; i++ {
		records = append(records, generate(rng, i))
	}

	if err := os.MkdirAll(filepath.Dir(*outputPath), 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "create output dir: %v\n", err)
		os.Exit(1)
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "marshal: %v\n", err)
		os.Exit(1)
	}
	if err := os.WriteFile(*outputPath, data, 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "write: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Wrote %d practitioners to %s (seed %d)\n", len(records), *outputPath, *seed)
}

func generate(rng *rand.Rand, i int) practitioner {
	spec := specialties[rng.Intn(len(specialties))]
	loc := localities[rng.Intn(len(localities))]

	gender := "male"
	title := "Mr"
	if rng.Intn(2) == 0 {
		gender = "female"
		title = "Ms"
	}
	if rng.Float64() < 0.7 {
		title = "Dr"
	}

	name := fmt.Sprintf("%s %s", pick(rng, firstNames), pick(rng, lastNames))

	nSubs := 1 + rng.Intn(2)
	subs := sample(rng, spec.subspecs, nSubs)

	nProcs := 1 + rng.Intn(3)
	procs := make([]procedureGroup, 0, nProcs)
	for _, p := range sample(rng, spec.procs, nProcs) {
		procs = append(procs, procedureGroup{Name: p, AdmissionCount: rng.Intn(200)})
	}

	nIns := 1 + rng.Intn(4)
	providers := make([]insuranceProvider, 0, nIns)
	for _, ins := range sample(rng, insurers, nIns) {
		providers = append(providers, insuranceProvider{CanonicalName: ins, RawName: ins + " Health Insurance"})
	}

	expertise := fmt.Sprintf("Procedure: %s; Condition: %s; Clinical Interests: %s",
		pick(rng, spec.procs), pick(rng, spec.interests), pick(rng, spec.interests))

	p := practitioner{
		ID:                 fmt.Sprintf("prac-%05d", i),
		Name:               name,
		Title:              title,
		Specialty:          spec.name,
		Subspecialties:     subs,
		Description:        fmt.Sprintf("%s %s is a consultant in %s with a special interest in %s.", title, name, spec.name, subs[0]),
		ClinicalExpertise:  expertise,
		Qualifications:     "MBBS, FRCS",
		AddressLocality:    loc.city,
		PostalCode:         loc.outcode + " 1AA",
		ProcedureGroups:    procs,
		InsuranceProviders: providers,
		PatientAgeGroups:   []string{"adult"},
		Languages:          []string{"English"},
		Gender:             gender,
		RatingValue:        3.5 + rng.Float64()*1.5,
		ReviewCount:        rng.Intn(300),
		YearsExperience:    5 + rng.Intn(30),
		Verified:           rng.Float64() < 0.6,
	}
	if rng.Float64() < 0.3 {
		p.PatientAgeGroups = append(p.PatientAgeGroups, "paediatric")
	}
	if rng.Float64() < 0.4 {
		p.NHSBase = loc.city + " General Hospital"
	}
	return p
}

func pick(rng *rand.Rand, items []string) string {
	return items[rng.Intn(len(items))]
}

func sample(rng *rand.Rand, items []string, n int) []string {
	idx := rng.Perm(len(items))
	if n > len(items) {
		n = len(items)
	}
	out := make([]string, 0, n)
	for _, j := range idx[:n] {
		out = append(out, items[j])
	}
	return out
}

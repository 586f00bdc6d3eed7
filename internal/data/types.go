package data

// FeatureNames are the columns of the heart-risk sample dataset, in the order
// the bundled model is trained on.
var FeatureNames = []string{"age", "gender", "cholesterol", "blood_pressure", "heart_rate", "smoking", "diabetes", "family_history"}

type Patient struct {
	ID            int64
	Age           int
	Gender        int
	Cholesterol   int
	BloodPressure int
	HeartRate     int
	Smoking       int
	Diabetes      int
	FamilyHistory int
}

func (p Patient) Features() []int {
	return []int{p.Age, p.Gender, p.Cholesterol, p.BloodPressure, p.HeartRate, p.Smoking, p.Diabetes, p.FamilyHistory}
}

var SamplePatients = []Patient{
	{ID: 1001, Age: 45, Gender: 1, Cholesterol: 180, BloodPressure: 120, HeartRate: 70, Smoking: 0, Diabetes: 0, FamilyHistory: 1},
	{ID: 1002, Age: 62, Gender: 0, Cholesterol: 240, BloodPressure: 140, HeartRate: 85, Smoking: 1, Diabetes: 1, FamilyHistory: 1},
	{ID: 1003, Age: 34, Gender: 1, Cholesterol: 150, BloodPressure: 110, HeartRate: 65, Smoking: 0, Diabetes: 0, FamilyHistory: 0},
	{ID: 1004, Age: 55, Gender: 1, Cholesterol: 210, BloodPressure: 135, HeartRate: 80, Smoking: 1, Diabetes: 0, FamilyHistory: 1},
	{ID: 1005, Age: 41, Gender: 0, Cholesterol: 190, BloodPressure: 125, HeartRate: 75, Smoking: 0, Diabetes: 1, FamilyHistory: 0},
}

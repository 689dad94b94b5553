package extract

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// DefaultRequiredFolders is the reduced deployment profile: recordings only
// need the camera and location trees to be processable.
var DefaultRequiredFolders = []string{"camera", "location"}

// FullRequiredFolders is the complete capture profile.
var FullRequiredFolders = []string{"acceleration", "calibration", "camera", "location", "processed"}

// Validator checks the structure of an extracted recording tree.
//
// Expected layout:
//
//	root/
//	└── <device_id>/            digits only, exactly one
//	    └── <imei>/             exactly one
//	        ├── acceleration/   <recording_id>_acc.csv
//	        ├── calibration/    at least one *_calibration.csv
//	        ├── camera/         at least one .mp4
//	        ├── location/       at least one .csv
//	        └── processed/      <recording_id>_processed_{acc,loc}.csv
//
// Structural problems are returned as data, never as a Go error; the report
// collects every missing folder and file so callers see all problems in one
// round trip.
type Validator struct {
	// RequiredFolders defaults to DefaultRequiredFolders.
	RequiredFolders []string
}

func (v *Validator) requiredFolders() []string {
	if len(v.RequiredFolders) == 0 {
		return DefaultRequiredFolders
	}
	return v.RequiredFolders
}

// ValidateStructure validates the tree under rootPath for the recording id
// the archive's top-level folder named.
func (v *Validator) ValidateStructure(rootPath, recordingID string) (bool, map[string]any) {
	errs := map[string]any{}

	devices, err := subdirectories(rootPath)
	if err != nil || len(devices) == 0 {
		errs["device_folder"] = "No device folder found"
		return false, errs
	}
	if len(devices) > 1 {
		errs["device_folder"] = fmt.Sprintf("Multiple device folders found: %s. Only one expected.", strings.Join(devices, ", "))
		return false, errs
	}
	deviceFolder := devices[0]
	if !isDigits(deviceFolder) {
		errs["device_folder"] = fmt.Sprintf("Device folder not available or invalid: %s", deviceFolder)
		return false, errs
	}
	devicePath := filepath.Join(rootPath, deviceFolder)

	imeis, err := subdirectories(devicePath)
	if err != nil || len(imeis) == 0 {
		errs["imei_folder"] = "No IMEI folder found"
		return false, errs
	}
	if len(imeis) > 1 {
		errs["imei_folder"] = fmt.Sprintf("Multiple IMEI folders found: %s. Only one expected.", strings.Join(imeis, ", "))
		return false, errs
	}
	imeiPath := filepath.Join(devicePath, imeis[0])

	var missingFolders []string
	for _, sub := range v.requiredFolders() {
		info, err := os.Stat(filepath.Join(imeiPath, sub))
		if err != nil || !info.IsDir() {
			missingFolders = append(missingFolders, sub)
		}
	}
	if len(missingFolders) > 0 {
		errs["missing_folders"] = fmt.Sprintf("Missing folders: %s", strings.Join(missingFolders, ", "))
		return false, errs
	}

	missingFiles := map[string][]string{}
	for _, sub := range v.requiredFolders() {
		if missing := checkFolderFiles(filepath.Join(imeiPath, sub), sub, recordingID); len(missing) > 0 {
			missingFiles[sub] = missing
		}
	}
	if len(missingFiles) > 0 {
		errs["missing_files"] = missingFiles
		return false, errs
	}

	return true, map[string]any{}
}

// checkFolderFiles returns the list of unmet file requirements for one
// required folder. All requirements are evaluated, not just the first.
func checkFolderFiles(dir, folder, recordingID string) []string {
	names, err := fileNames(dir)
	if err != nil {
		return []string{fmt.Sprintf("Folder %s is unreadable", folder)}
	}

	var missing []string
	switch folder {
	case "camera":
		if !anyWithSuffix(names, ".mp4") {
			missing = append(missing, "At least one .mp4 video file required")
		}
	case "location":
		if !anyWithSuffix(names, ".csv") {
			missing = append(missing, "At least one .csv file required")
		}
	case "acceleration":
		if want := recordingID + "_acc.csv"; !contains(names, want) {
			missing = append(missing, want)
		}
	case "calibration":
		if !anyWithSuffix(names, "_calibration.csv") {
			missing = append(missing, "At least one *_calibration.csv file required")
		}
	case "processed":
		for _, want := range []string{recordingID + "_processed_acc.csv", recordingID + "_processed_loc.csv"} {
			if !contains(names, want) {
				missing = append(missing, want)
			}
		}
	}
	return missing
}

func subdirectories(path string) ([]string, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, err
	}
	var dirs []string
	for _, e := range entries {
		if e.IsDir() {
			dirs = append(dirs, e.Name())
		}
	}
	return dirs, nil
}

func fileNames(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	return names, nil
}

func anyWithSuffix(names []string, suffix string) bool {
	for _, n := range names {
		if strings.HasSuffix(strings.ToLower(n), suffix) {
			return true
		}
	}
	return false
}

func contains(names []string, want string) bool {
	for _, n := range names {
		if n == want {
			return true
		}
	}
	return false
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

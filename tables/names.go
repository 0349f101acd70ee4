package tables

// ProcedureName renders a standard procedure number per spec.md section
// 4.5; manufacturer-defined procedure numbers (passed with
// isManufacturer true to RunProcedure) are not named here since their
// meaning is device-specific.
func ProcedureName(nbr int) string {
	switch nbr {
	case 1:
		return "Restore Factory Default Configuration"
	case 2:
		return "Remote Port Disable/Enable"
	case 3:
		return "Reset List Pointer"
	case 4:
		return "Reset Number of Demand Resets Counter"
	case 5:
		return "Reset Number of Power Outages Counter"
	case 6:
		return "Set Date/Time"
	case 7:
		return "Save Configuration"
	case 8:
		return "Initiate/Terminate Test Mode"
	case 9:
		return "Reset Register Data"
	default:
		return "Unknown Procedure"
	}
}

// ProcedureResultName renders table 8's result code byte per spec.md
// section 4.5 step 5.
func ProcedureResultName(code byte) string {
	switch code {
	case 0:
		return "Completed"
	case 1:
		return "Not Fully Completed"
	case 2:
		return "Invalid Parameter"
	case 3:
		return "Conditions Prevent Execution"
	case 4:
		return "Ignored Due to Device Lockout"
	case 5:
		return "Conflict With Current Device Setup"
	case 6:
		return "Timing Constraint"
	case 7:
		return "No Authorization"
	case 8:
		return "Unrecognized Procedure"
	default:
		return "Unknown Result Code"
	}
}

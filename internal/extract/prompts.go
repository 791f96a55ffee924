package extract

// Document types accepted for upload and extraction
const (
	TypePassport = "passport"
	TypeCheck    = "check"
	TypeInvoice  = "invoice"
)

// ValidType reports whether t is a supported document type
func ValidType(t string) bool {
	switch t {
	case TypePassport, TypeCheck, TypeInvoice:
		return true
	}
	return false
}

const passportInstruction = `Extract the following specific data from this passport image. Look carefully for each field:

1. PASSPORT COUNTRY CODE: The 3-letter country code, usually in the MRZ or on the data page

2. PASSPORT TYPE: Usually a single letter (P for regular passport) in the MRZ line

3. PASSPORT NUMBER: Look for 'Passport No./No. du Passeport'

4. FIRST NAME: Extract only the first/given name from 'Given names/Prenoms'

5. FAMILY NAME: Extract only the surname/family name from 'Surname/Nom'

6. DATE OF BIRTH: Extract the day, month, and year separately
   - Date of Birth Day (numeric)
   - Date of Birth Month (numeric or text)
   - Date of Birth Year (4 digits)

7. PLACE OF BIRTH: Look for 'Place of birth/Lieu de naissance'

8. GENDER: Look for 'Sex/Sexe' field (M or F)

9. DATE OF ISSUE: Extract the day, month, and year separately

10. DATE OF EXPIRATION: Extract the day, month, and year separately

11. ISSUING AUTHORITY: Agency or entity that issued the passport

Output exactly in this format (write 'Not visible' only if you cannot find the information):
----------------------------
Passport Country Code: [3-letter code]
Passport Type: [letter code]
Passport Number: [number]
First Name: [first/given name only]
Family Name: [family/surname only]
Date of Birth Day: [day]
Date of Birth Month: [month]
Date of Birth Year: [year]
Place of Birth: [place]
Gender: [M/F]
Date of Issue Day: [day]
Date of Issue Month: [month]
Date of Issue Year: [year]
Date of Expiration Day: [day]
Date of Expiration Month: [month]
Date of Expiration Year: [year]
Authority: [issuing authority]`

const checkInstruction = `Extract text exactly as it appears in this check/cheque image. Look carefully for ONLY these specific fields:

1. BANK NAME:
   - Look at the top center/header of check
   - Usually includes words like 'Bank', 'Trust', 'Financial' etc.

2. PAYOR NAME:
   - Look for the pre-printed name at top-left of check
   - This is the person/entity WRITING the check
   - Extract only the name

3. PAYOR ADDRESS:
   - Look for the pre-printed address under the payor name
   - Include complete street address

4. CHECK NUMBER:
   - Look for number in top-right corner or bottom MICR line

5. PAYEE NAME:
   - Look for name after 'Pay to the order of' or 'Pay'
   - Extract only the name
   - If business name, include full name

6. PAYEE ADDRESS:
   - Look for address associated with payee if present

7. AMOUNT:
   - Look for amount in numbers (in box on right side)
   - Format as dollars and cents (e.g., 1,123.56)

Output exactly in this format :
----------------------------
Bank Name: [name of bank]
1st Payor First Name: [name of payor]
Payor Street Address: [complete street address]
Check Amount: [amount in numbers]
1st Payee First Name: [name or business name]
Check Number: [number]
Payee Street Address: [complete street address]`

const invoiceInstruction = `Extract text exactly as it appears in this invoice image. For each field below:

1. INVOICE NUMBER: Look for 'Invoice #', 'Invoice Number', etc.

2. INVOICE DATE: Look for 'Date', 'Invoice Date', etc.

3. DUE DATE: Look for 'Due Date', 'Payment Due', etc.

4. VENDOR/SELLER: Company name, address, contact info (who issued the invoice)

5. CUSTOMER/BILL TO: Name and address of the customer

6. PAYMENT TERMS: Look for 'Terms', 'Payment Terms', etc. (e.g., Net 30)

7. ITEMS/SERVICES: List all line items with descriptions, quantities, unit prices

8. SUBTOTAL: Amount before tax/shipping

9. TAX: Tax amount and rate (if specified)

10. SHIPPING/HANDLING: Shipping or handling charges (if any)

11. TOTAL AMOUNT: Final amount due

12. PAYMENT INSTRUCTIONS: Bank details, payment methods, etc.

Output exactly in this format (write 'Not visible' only if you cannot find the information):
----------------------------
Invoice Number: [number]
Invoice Date: [date]
Due Date: [date]
Vendor/Seller: [company name & address]
Customer: [name & address]
Payment Terms: [terms]
Items/Services: [description of items with prices]
Subtotal: [amount]
Tax: [amount and rate]
Shipping/Handling: [amount if applicable]
Total Amount: [final amount]
Payment Instructions: [payment details]`

var instructions = map[string]string{
	TypePassport: passportInstruction,
	TypeCheck:    checkInstruction,
	TypeInvoice:  invoiceInstruction,
}

// Instruction returns the extraction prompt for a document type.
// Unknown types fall back to the passport prompt.
func Instruction(docType string) string {
	if p, ok := instructions[docType]; ok {
		return p
	}
	return passportInstruction
}

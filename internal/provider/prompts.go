package provider

const basicInfoPrompt = `Extract only the following basic information from the CV.
IMPORTANT: Do not translate any text - keep all extracted information in its original language.
Return a simple JSON object with these fields only:
{
    "candidate_name": "full name",
    "position": "position the candidate is applying for. if not mentioned, make it the most relevant position from the experience section",
    "email": "email address",
    "phone": "phone number in the following format: For Israeli numbers (starting with +972 or 05), convert to 10 digits starting with no special characters (e.g. '+972541234567' or '054-123-4567' becomes '0541234567'). For international numbers, use format '+[country code] [number]' with one space after the prefix (e.g. '+44 1234567890' or '+1 2345678900')",
    "location": "address",
    "social_profiles": {
        "linkedin": "Only the profile URL path without http/https, e.g. 'linkedin.com/in/username'. If only the word 'LinkedIn' or 'linkedin.com' is found, leave empty",
        "github": "Only the profile URL path without http/https, e.g. 'github.com/username'. If only the word 'GitHub' or 'github.com' is found, leave empty",
        "portfolio": "Only the website URL without http/https. If no specific URL is found, leave empty",
        "twitter": "Only the profile URL path without http/https, e.g. 'twitter.com/username'. If only the word 'Twitter' or 'twitter.com' is found, leave empty",
        "other": ["Any other professional profile URLs without http/https. Only include if complete profile URLs are found"]
    }
}
Important: Return ONLY a valid JSON object with no special characters or formatting.
Keep all text exactly as it appears in the original CV without any translation.
For social profiles, extract them from both the text content and any embedded links.
For all social profile URLs, remove any http:// or https:// prefix and ensure they are complete profile URLs, not just domain names.`

const experiencePrompt = `Extract only the work experience information from the CV.
IMPORTANT: Do not translate any text - keep all extracted information in its original language.
Return a simple JSON object with this structure:
{
    "experience": [
        {
            "title": "job title",
            "company": "company name",
            "duration": "employment period. e.g 2020-2024",
            "description": "role description"
        }
    ]
}
Important: Return ONLY a valid JSON object with no special characters or formatting.
Keep all text exactly as it appears in the original CV without any translation.`

const educationPrompt = `Extract only the education information from the CV.
IMPORTANT: Do not translate any text - keep all extracted information in its original language.
Return a simple JSON object with this structure:
{
    "education": [
        {
            "institution": "school name",
            "degree": "degree name",
            "year": "graduation year"
        }
    ]
}
Important: Return ONLY a valid JSON object with no special characters or formatting.
Keep all text exactly as it appears in the original CV without any translation.`

const skillsPrompt = `Extract only the most important and relevant skills and languages from the CV.
Group similar skills together (e.g. combine "React.js", "React Native" into just "React")
and limit to maximum 10-12 core skills total.
Focus on technical skills, tools, and technologies that appear most prominent.
IMPORTANT: Do not translate any text - keep all extracted information in its original language, EXCEPT for languages which should be translated to Hebrew.
For languages: translate "English" to "אנגלית", "French" to "צרפתית", "Spanish" to "ספרדית", "German" to "גרמנית", "Russian" to "רוסית", "Arabic" to "ערבית", etc.
Return a simple JSON object with this structure:
{
    "skills": ["skill1", "skill2"],
    "languages": ["שפה1", "שפה2"]
}
Important: Return ONLY a valid JSON object with no special characters or formatting.
Keep all text exactly as it appears in the original CV without any translation, except for languages which must be in Hebrew.`

const militaryPrompt = `Extract only military service information from the CV.
IMPORTANT: Do not translate any text - keep all extracted information in its original language.
Return a simple JSON object with this structure:
{
    "military_service": {
        "role": "military role",
        "unit": "unit name",
        "years": "service period"
    }
}
Important: Return ONLY a valid JSON object with no special characters or formatting.
Keep all text exactly as it appears in the original CV without any translation.`

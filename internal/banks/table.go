package banks

// table is keyed by normalized 3-digit COMPE clearing code.
var table = map[string]Bank{
	"001": {Code: "001", ISPB: "00000000", Name: "Banco do Brasil S.A.", ShortName: "Banco do Brasil", Color: "#FFCD00"},
	"033": {Code: "033", ISPB: "90400888", Name: "Banco Santander (Brasil) S.A.", ShortName: "Santander", Color: "#EC0000"},
	"104": {Code: "104", ISPB: "00360305", Name: "Caixa Econômica Federal", ShortName: "Caixa", Color: "#0066B3"},
	"237": {Code: "237", ISPB: "60746948", Name: "Banco Bradesco S.A.", ShortName: "Bradesco", Color: "#CC092F"},
	"341": {Code: "341", ISPB: "60701190", Name: "Itaú Unibanco S.A.", ShortName: "Itaú", Color: "#FF7900"},
	"399": {Code: "399", ISPB: "17298092", Name: "HSBC Bank Brasil S.A.", ShortName: "HSBC", Color: "#DB0011"},
	"745": {Code: "745", ISPB: "33479023", Name: "Banco Citibank S.A.", ShortName: "Citibank", Color: "#003B70"},
	"077": {Code: "077", ISPB: "00416968", Name: "Banco Inter S.A.", ShortName: "Banco Inter", Color: "#FF7A00"},
	"260": {Code: "260", ISPB: "18236120", Name: "Nu Pagamentos S.A.", ShortName: "Nubank", Color: "#820AD1"},
	"336": {Code: "336", ISPB: "31872495", Name: "Banco C6 S.A.", ShortName: "C6 Bank", Color: "#242424"},
	"290": {Code: "290", ISPB: "08561701", Name: "PagSeguro Internet S.A.", ShortName: "PagBank", Color: "#00A94F"},
	"380": {Code: "380", ISPB: "22896431", Name: "PicPay Serviços S.A.", ShortName: "PicPay", Color: "#21C25E"},
	"212": {Code: "212", ISPB: "92894922", Name: "Banco Original S.A.", ShortName: "Original", Color: "#00A94F"},
	"637": {Code: "637", ISPB: "60889128", Name: "Banco Sofisa S.A.", ShortName: "Sofisa Direto", Color: "#FF6B00"},
	"323": {Code: "323", ISPB: "10573521", Name: "Mercado Pago", ShortName: "Mercado Pago", Color: "#009EE3"},
	"403": {Code: "403", ISPB: "37880206", Name: "Cora SCD S.A.", ShortName: "Cora", Color: "#FE3E6D"},
	"332": {Code: "332", ISPB: "13140088", Name: "Acesso Soluções de Pagamento S.A.", ShortName: "Acesso", Color: "#00C4B3"},
	"280": {Code: "280", ISPB: "23862762", Name: "Will Financeira S.A.", ShortName: "Will Bank", Color: "#FFCC00"},
	"335": {Code: "335", ISPB: "27098060", Name: "Banco Digio S.A.", ShortName: "Digio", Color: "#0066FF"},
	"197": {Code: "197", ISPB: "04184779", Name: "Stone Pagamentos S.A.", ShortName: "Stone", Color: "#00A868"},
	"748": {Code: "748", ISPB: "01181521", Name: "Banco Cooperativo Sicredi S.A.", ShortName: "Sicredi", Color: "#0F8042"},
	"756": {Code: "756", ISPB: "02038232", Name: "Banco Cooperativo Sicoob S.A.", ShortName: "Sicoob", Color: "#00A693"},
	"085": {Code: "085", ISPB: "05463212", Name: "Cooperativa Central de Crédito - Ailos", ShortName: "Ailos", Color: "#00A3E0"},
	"089": {Code: "089", ISPB: "62109566", Name: "Cooperativa de Crédito Rural da Região da Mogiana", ShortName: "Credisan", Color: "#0066B3"},
	"091": {Code: "091", ISPB: "01634601", Name: "Unicred Central RS", ShortName: "Unicred", Color: "#00529B"},
	"136": {Code: "136", ISPB: "00315557", Name: "Unicred do Brasil", ShortName: "Unicred", Color: "#00529B"},
	"041": {Code: "041", ISPB: "92702067", Name: "Banco do Estado do Rio Grande do Sul S.A.", ShortName: "Banrisul", Color: "#003366"},
	"004": {Code: "004", ISPB: "62318007", Name: "Banco do Nordeste do Brasil S.A.", ShortName: "BNB", Color: "#E31837"},
	"021": {Code: "021", ISPB: "33870163", Name: "Banco do Estado do Espírito Santo S.A.", ShortName: "Banestes", Color: "#0066B3"},
	"047": {Code: "047", ISPB: "13009717", Name: "Banco do Estado de Sergipe S.A.", ShortName: "Banese", Color: "#003366"},
	"070": {Code: "070", ISPB: "00000208", Name: "Banco de Brasília S.A.", ShortName: "BRB", Color: "#003399"},
	"037": {Code: "037", ISPB: "04913711", Name: "Banco do Estado do Pará S.A.", ShortName: "Banpará", Color: "#00529B"},
	"024": {Code: "024", ISPB: "03323840", Name: "Banco de Pernambuco S.A.", ShortName: "Bandepe", Color: "#E31837"},
	"422": {Code: "422", ISPB: "58160789", Name: "Banco Safra S.A.", ShortName: "Safra", Color: "#003366"},
	"655": {Code: "655", ISPB: "59588111", Name: "Banco Votorantim S.A.", ShortName: "Votorantim", Color: "#FF6600"},
	"318": {Code: "318", ISPB: "61186680", Name: "Banco BMG S.A.", ShortName: "BMG", Color: "#FF6600"},
	"389": {Code: "389", ISPB: "17184037", Name: "Banco Mercantil do Brasil S.A.", ShortName: "Mercantil", Color: "#003366"},
	"218": {Code: "218", ISPB: "71027866", Name: "Banco BS2 S.A.", ShortName: "BS2", Color: "#FF6600"},
	"208": {Code: "208", ISPB: "30306294", Name: "Banco BTG Pactual S.A.", ShortName: "BTG Pactual", Color: "#003366"},
	"394": {Code: "394", ISPB: "07207996", Name: "Banco Bradesco Financiamentos S.A.", ShortName: "Bradesco Financ.", Color: "#CC092F"},
	"746": {Code: "746", ISPB: "30723886", Name: "Banco Modal S.A.", ShortName: "Modal", Color: "#003366"},
	"623": {Code: "623", ISPB: "59118133", Name: "Banco Pan S.A.", ShortName: "Banco Pan", Color: "#FF6600"},
	"633": {Code: "633", ISPB: "68900810", Name: "Banco Rendimento S.A.", ShortName: "Rendimento", Color: "#003366"},
	"741": {Code: "741", ISPB: "00517645", Name: "Banco Ribeirão Preto S.A.", ShortName: "BRP", Color: "#003366"},
	"719": {Code: "719", ISPB: "07450604", Name: "Banco Banif S.A.", ShortName: "Banif", Color: "#003366"},
	"707": {Code: "707", ISPB: "62232889", Name: "Banco Daycoval S.A.", ShortName: "Daycoval", Color: "#003366"},
	"739": {Code: "739", ISPB: "00558456", Name: "Banco Cetelem S.A.", ShortName: "Cetelem", Color: "#009640"},
	"743": {Code: "743", ISPB: "00795423", Name: "Banco Semear S.A.", ShortName: "Semear", Color: "#003366"},
	"069": {Code: "069", ISPB: "61033106", Name: "Banco Crefisa S.A.", ShortName: "Crefisa", Color: "#003366"},
	"654": {Code: "654", ISPB: "92874270", Name: "Banco A.J. Renner S.A.", ShortName: "Renner", Color: "#E31837"},
	"456": {Code: "456", ISPB: "60498557", Name: "Banco MUFG Brasil S.A.", ShortName: "MUFG", Color: "#E60012"},
	"003": {Code: "003", ISPB: "04902979", Name: "Banco da Amazônia S.A.", ShortName: "BASA", Color: "#00529B"},
	"029": {Code: "029", ISPB: "33657248", Name: "Banco Itaú Consignado S.A.", ShortName: "Itaú Consignado", Color: "#FF7900"},
	"121": {Code: "121", ISPB: "10664513", Name: "Banco Agibank S.A.", ShortName: "Agibank", Color: "#00A550"},
	"246": {Code: "246", ISPB: "28195667", Name: "Banco ABC Brasil S.A.", ShortName: "ABC Brasil", Color: "#003366"},
	"025": {Code: "025", ISPB: "03012230", Name: "Banco Alfa S.A.", ShortName: "Alfa", Color: "#003366"},
	"213": {Code: "213", ISPB: "54403563", Name: "Banco Arbi S.A.", ShortName: "Arbi", Color: "#003366"},
	"019": {Code: "019", ISPB: "09274232", Name: "Banco Azteca do Brasil S.A.", ShortName: "Azteca", Color: "#00A550"},
	"752": {Code: "752", ISPB: "01522368", Name: "Banco BNP Paribas Brasil S.A.", ShortName: "BNP Paribas", Color: "#00965E"},
	"107": {Code: "107", ISPB: "15114366", Name: "Banco Bocom BBM S.A.", ShortName: "Bocom BBM", Color: "#003366"},
	"063": {Code: "063", ISPB: "04866275", Name: "Banco Bradescard S.A.", ShortName: "Bradescard", Color: "#CC092F"},
	"036": {Code: "036", ISPB: "06271464", Name: "Banco Bradesco BBI S.A.", ShortName: "Bradesco BBI", Color: "#CC092F"},
	"122": {Code: "122", ISPB: "33147315", Name: "Banco Bradesco BERJ S.A.", ShortName: "Bradesco BERJ", Color: "#CC092F"},
	"204": {Code: "204", ISPB: "59438325", Name: "Banco Bradesco Cartões S.A.", ShortName: "Bradesco Cartões", Color: "#CC092F"},
	"263": {Code: "263", ISPB: "33885724", Name: "Banco Cacique S.A.", ShortName: "Cacique", Color: "#003366"},
	"473": {Code: "473", ISPB: "33466988", Name: "Banco Caixa Geral - Brasil S.A.", ShortName: "Caixa Geral", Color: "#003366"},
	"412": {Code: "412", ISPB: "15173776", Name: "Banco Capital S.A.", ShortName: "Capital", Color: "#003366"},
	"040": {Code: "040", ISPB: "33132044", Name: "Banco Cargill S.A.", ShortName: "Cargill", Color: "#003366"},
	"266": {Code: "266", ISPB: "33132044", Name: "Banco Cédula S.A.", ShortName: "Cédula", Color: "#003366"},
	"320": {Code: "320", ISPB: "07450604", Name: "Banco China Construction Bank Brasil", ShortName: "CCB Brasil", Color: "#003366"},
	"477": {Code: "477", ISPB: "33042151", Name: "Banco Citibank S.A.", ShortName: "Citibank", Color: "#003B70"},
	"081": {Code: "081", ISPB: "10866788", Name: "Banco Seguro S.A.", ShortName: "BBS", Color: "#003366"},
	"097": {Code: "097", ISPB: "04632856", Name: "Cooperativa Central de Crédito Noroeste Brasileiro", ShortName: "Credisis", Color: "#003366"},
	"487": {Code: "487", ISPB: "62331228", Name: "Deutsche Bank S.A. - Banco Alemão", ShortName: "Deutsche Bank", Color: "#0018A8"},
	"064": {Code: "064", ISPB: "04913129", Name: "Goldman Sachs do Brasil Banco Múltiplo S.A.", ShortName: "Goldman Sachs", Color: "#003366"},
	"062": {Code: "062", ISPB: "03012230", Name: "Hipercard Banco Múltiplo S.A.", ShortName: "Hipercard", Color: "#E31837"},
	"074": {Code: "074", ISPB: "03017677", Name: "Banco J. Safra S.A.", ShortName: "J. Safra", Color: "#003366"},
	"376": {Code: "376", ISPB: "33172537", Name: "Banco J.P. Morgan S.A.", ShortName: "J.P. Morgan", Color: "#003366"},
	"757": {Code: "757", ISPB: "02318507", Name: "Banco Keb Hana do Brasil S.A.", ShortName: "Keb Hana", Color: "#003366"},
	"600": {Code: "600", ISPB: "59118133", Name: "Banco Luso Brasileiro S.A.", ShortName: "Luso Brasileiro", Color: "#003366"},
	"243": {Code: "243", ISPB: "33923798", Name: "Banco Máxima S.A.", ShortName: "Máxima", Color: "#003366"},
	"613": {Code: "613", ISPB: "60850229", Name: "Banco Omni S.A.", ShortName: "Omni", Color: "#003366"},
	"254": {Code: "254", ISPB: "14388334", Name: "Banco Paraná Banco S.A.", ShortName: "Paraná Banco", Color: "#003366"},
	"125": {Code: "125", ISPB: "45246410", Name: "Banco Plural S.A.", ShortName: "Plural", Color: "#003366"},
	"611": {Code: "611", ISPB: "61024352", Name: "Banco Paulista S.A.", ShortName: "Paulista", Color: "#003366"},
	"643": {Code: "643", ISPB: "62144175", Name: "Banco Pine S.A.", ShortName: "Pine", Color: "#003366"},
	"747": {Code: "747", ISPB: "01023570", Name: "Banco Rabobank International Brasil S.A.", ShortName: "Rabobank", Color: "#FF6600"},
	"120": {Code: "120", ISPB: "33603457", Name: "Banco Rodobens S.A.", ShortName: "Rodobens", Color: "#003366"},
	"453": {Code: "453", ISPB: "60850229", Name: "Banco Rural S.A.", ShortName: "Rural", Color: "#003366"},
	"751": {Code: "751", ISPB: "29030467", Name: "Scotiabank Brasil S.A. Banco Múltiplo", ShortName: "Scotiabank", Color: "#EC111A"},
	"366": {Code: "366", ISPB: "61182408", Name: "Banco Société Générale Brasil S.A.", ShortName: "Société Générale", Color: "#E31837"},
	"464": {Code: "464", ISPB: "60518222", Name: "Banco Sumitomo Mitsui Brasileiro S.A.", ShortName: "Sumitomo Mitsui", Color: "#003366"},
	"634": {Code: "634", ISPB: "17351180", Name: "Banco Triângulo S.A.", ShortName: "Triângulo", Color: "#003366"},
	"610": {Code: "610", ISPB: "78626983", Name: "Banco VR S.A.", ShortName: "VR", Color: "#003366"},
	"119": {Code: "119", ISPB: "13720915", Name: "Banco Western Union do Brasil S.A.", ShortName: "Western Union", Color: "#FFCC00"},
	"102": {Code: "102", ISPB: "02332886", Name: "XP Investimentos S.A.", ShortName: "XP", Color: "#FFCC00"},
	"348": {Code: "348", ISPB: "33042953", Name: "Banco XP S.A.", ShortName: "Banco XP", Color: "#FFCC00"},
	"084": {Code: "084", ISPB: "02398976", Name: "Uniprime Norte do Paraná", ShortName: "Uniprime", Color: "#003366"},
	"180": {Code: "180", ISPB: "02685483", Name: "CM Capital Markets CCTVM Ltda", ShortName: "CM Capital", Color: "#003366"},
	"183": {Code: "183", ISPB: "09210106", Name: "Socred S.A.", ShortName: "Socred", Color: "#003366"},
	"014": {Code: "014", ISPB: "09274232", Name: "Natixis Brasil S.A.", ShortName: "Natixis", Color: "#003366"},
	"755": {Code: "755", ISPB: "62073200", Name: "Bank of America Merrill Lynch", ShortName: "BofA", Color: "#012169"},
	"188": {Code: "188", ISPB: "33775974", Name: "Ativa Investimentos S.A.", ShortName: "Ativa", Color: "#003366"},
	"144": {Code: "144", ISPB: "02276653", Name: "Bexs Banco de Câmbio S.A.", ShortName: "Bexs", Color: "#003366"},
	"126": {Code: "126", ISPB: "13009717", Name: "BR Partners Banco de Investimento S.A.", ShortName: "BR Partners", Color: "#003366"},
	"173": {Code: "173", ISPB: "09210106", Name: "BRL Trust DTVM S.A.", ShortName: "BRL Trust", Color: "#003366"},
	"092": {Code: "092", ISPB: "05463212", Name: "Brickell S.A.", ShortName: "Brickell", Color: "#003366"},
	"142": {Code: "142", ISPB: "02398976", Name: "Broker Brasil CC Ltda", ShortName: "Broker Brasil", Color: "#003366"},
}
